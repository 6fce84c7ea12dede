package domain

import "strings"

const (
	defaultBusinessName   = "our business"
	defaultBusinessType   = "business"
	defaultInitialMessage = "Hi! How can I help you today?"
)

// KnowledgeEntry is a single question/answer record of a business knowledge base.
type KnowledgeEntry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Category string `json:"category"`
	Priority int    `json:"priority"`
}

// BusinessIdentity describes who the assistant speaks for.
type BusinessIdentity struct {
	Name           string `json:"name"`
	Logo           string `json:"logo,omitempty"`
	Type           string `json:"type"`
	Specialization string `json:"specialization,omitempty"`
}

// ContactInfo is used verbatim in prompts and must never be invented.
type ContactInfo struct {
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
	Hours   string `json:"hours,omitempty"`
	Website string `json:"website,omitempty"`
}

// Lines returns the populated contact details as "Label: value" lines in a
// fixed order.
func (c ContactInfo) Lines() []string {
	fields := []struct{ label, value string }{
		{"Phone", c.Phone},
		{"Email", c.Email},
		{"Address", c.Address},
		{"Hours", c.Hours},
		{"Website", c.Website},
	}
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		if v := strings.TrimSpace(f.value); v != "" {
			lines = append(lines, f.label+": "+v)
		}
	}
	return lines
}

// BusinessContext is the cached, read-only view of one business.
type BusinessContext struct {
	ID             string           `json:"id"`
	Business       BusinessIdentity `json:"business"`
	Contact        ContactInfo      `json:"contact"`
	InitialMessage string           `json:"initialMessage"`
	SystemMessage  string           `json:"systemMessage,omitempty"`
	KnowledgeBase  []KnowledgeEntry `json:"knowledgeBase"`
}

// ApplyDefaults fills the optional identity fields so consumers never need
// to nil-check or substitute placeholders themselves.
func (b *BusinessContext) ApplyDefaults() {
	if strings.TrimSpace(b.Business.Name) == "" {
		b.Business.Name = defaultBusinessName
	}
	if strings.TrimSpace(b.Business.Type) == "" {
		b.Business.Type = defaultBusinessType
	}
	if strings.TrimSpace(b.InitialMessage) == "" {
		b.InitialMessage = defaultInitialMessage
	}
	b.SystemMessage = strings.TrimSpace(b.SystemMessage)
	if b.KnowledgeBase == nil {
		b.KnowledgeBase = []KnowledgeEntry{}
	}
}

// Categories returns the distinct non-empty categories in first-seen order.
func (b *BusinessContext) Categories() []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, e := range b.KnowledgeBase {
		if e.Category == "" {
			continue
		}
		if _, ok := seen[e.Category]; ok {
			continue
		}
		seen[e.Category] = struct{}{}
		out = append(out, e.Category)
	}
	return out
}
