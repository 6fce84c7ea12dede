package retrieval

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"support-agent/internal/domain"
)

const groundingDirective = "Knowledge base for this business, most relevant first. " +
	"Prefer these facts over anything you would otherwise assume and do not invent facts that are not listed. " +
	"Never make up phone numbers, emails, addresses or other contact details.\n"

// ContextBlock is the grounding text plus the entries it actually contains.
type ContextBlock struct {
	Text     string
	Included []domain.ScoredEntry
}

// Assemble renders entries, most relevant first, into a block of at most
// maxLength runes. An entry is included whole or not at all, and the first
// entry that does not fit ends the block. It returns nil when there is
// nothing to ground on.
func Assemble(entries []domain.ScoredEntry, maxLength int, translation domain.TranslationInfo, contact domain.ContactInfo) *ContextBlock {
	if len(entries) == 0 || maxLength <= 0 {
		return nil
	}

	head := groundingDirective + translationNote(translation)
	tail := contactSection(contact)
	used := utf8.RuneCountInString(head) + utf8.RuneCountInString(tail)
	if used > maxLength {
		return nil
	}

	var body strings.Builder
	included := make([]domain.ScoredEntry, 0, len(entries))
	for i, e := range entries {
		chunk := formatEntry(i+1, e.Entry)
		n := utf8.RuneCountInString(chunk)
		if used+n > maxLength {
			break
		}
		body.WriteString(chunk)
		used += n
		included = append(included, e)
	}
	if len(included) == 0 {
		return nil
	}
	return &ContextBlock{Text: head + body.String() + tail, Included: included}
}

func formatEntry(n int, e domain.KnowledgeEntry) string {
	return fmt.Sprintf("\n[%d] Q: %s\nA: %s\n", n, strings.TrimSpace(e.Question), strings.TrimSpace(e.Answer))
}

func translationNote(t domain.TranslationInfo) string {
	if !t.WasTranslated {
		return ""
	}
	return fmt.Sprintf("The customer wrote in %q: %q (English: %q). Reply in the customer's language.\n",
		t.SourceLanguage, t.Original, t.Translated)
}

func contactSection(c domain.ContactInfo) string {
	lines := c.Lines()
	if len(lines) == 0 {
		return ""
	}
	return "\nContact information (use exactly as written):\n" + strings.Join(lines, "\n") + "\n"
}
