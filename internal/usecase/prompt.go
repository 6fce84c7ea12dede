package usecase

import (
	"strings"

	"support-agent/internal/domain"
	"support-agent/internal/retrieval"
)

type promptInput struct {
	business *domain.BusinessContext
	context  *retrieval.ContextBlock
	history  []domain.ConversationTurn
	turns    int
}

// buildPromptMessages returns the system prompt, the grounding block when
// there is one, and the most recent turns, current user message included.
func buildPromptMessages(in promptInput) []domain.ChatMessage {
	messages := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: buildSystemPrompt(in.business)},
	}
	if in.context != nil {
		messages = append(messages, domain.ChatMessage{Role: domain.RoleSystem, Content: in.context.Text})
	}
	for _, turn := range recentTurns(in.history, in.turns) {
		messages = append(messages, domain.ChatMessage{Role: turn.Role, Content: turn.Content})
	}
	return messages
}

func buildSystemPrompt(biz *domain.BusinessContext) string {
	prompt := biz.SystemMessage
	if prompt == "" {
		prompt = defaultSystemPrompt(biz)
	}
	if directive := contactDirective(biz.Contact); directive != "" {
		prompt += "\n\n" + directive
	}
	return prompt
}

func defaultSystemPrompt(biz *domain.BusinessContext) string {
	intro := "You are a professional assistant for " + biz.Business.Name + ", a " + biz.Business.Type + "."
	if s := biz.Business.Specialization; s != "" {
		intro += " It specializes in " + s + "."
	}
	return strings.Join([]string{
		intro,
		"",
		"Response length:",
		"- Keep responses concise: 1-3 sentences.",
		"- Be direct. If you need more information, ask one short question.",
		"- If you don't know, say so and suggest contacting the business.",
		"- Finish every sentence you start.",
		"",
		"Tone:",
		"- Friendly, professional and brief.",
		"",
		"Avoid:",
		"- Long paragraphs or several options in one reply.",
		"- Step-by-step instructions unless the customer asks for them.",
		"- Filler words.",
	}, "\n")
}

func contactDirective(c domain.ContactInfo) string {
	lines := c.Lines()
	if len(lines) == 0 {
		return ""
	}
	return strings.Join([]string{
		"Contact information (use these exact details):",
		strings.Join(lines, "\n"),
		"",
		"Never generate or guess phone numbers, emails or addresses. " +
			"If asked for a contact detail that is not listed above, say you don't have it.",
	}, "\n")
}

func recentTurns(history []domain.ConversationTurn, n int) []domain.ConversationTurn {
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
