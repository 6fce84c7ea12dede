package retrieval

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"support-agent/internal/domain"
)

func scoredEntries(n int) []domain.ScoredEntry {
	out := make([]domain.ScoredEntry, n)
	for i := range out {
		out[i] = domain.ScoredEntry{
			Entry: domain.KnowledgeEntry{
				Question: fmt.Sprintf("Question number %d?", i),
				Answer:   fmt.Sprintf("Answer number %d with a few extra words.", i),
			},
			Index: i,
			Score: 1 - float64(i)/10,
		}
	}
	return out
}

func TestAssemble_EmptyInput(t *testing.T) {
	require.Nil(t, Assemble(nil, 2000, domain.TranslationInfo{}, domain.ContactInfo{}))
	require.Nil(t, Assemble(scoredEntries(2), 0, domain.TranslationInfo{}, domain.ContactInfo{}))
}

func TestAssemble_RespectsBudgetAndOrder(t *testing.T) {
	entries := scoredEntries(6)
	contact := domain.ContactInfo{Phone: "555-0100"}

	for maxLen := 1; maxLen <= 1200; maxLen += 7 {
		block := Assemble(entries, maxLen, domain.TranslationInfo{}, contact)
		if block == nil {
			continue
		}
		require.LessOrEqual(t, utf8.RuneCountInString(block.Text), maxLen)
		for i, inc := range block.Included {
			require.Equal(t, entries[i].Index, inc.Index, "included entries must be a prefix")
			require.Contains(t, block.Text, inc.Entry.Answer)
		}
		for _, skipped := range entries[len(block.Included):] {
			require.NotContains(t, block.Text, skipped.Entry.Question)
		}
	}
}

func TestAssemble_DropsEntryThatDoesNotFit(t *testing.T) {
	entries := scoredEntries(3)
	full := Assemble(entries, 100000, domain.TranslationInfo{}, domain.ContactInfo{})
	require.NotNil(t, full)
	require.Len(t, full.Included, 3)

	budget := utf8.RuneCountInString(full.Text) - 1
	block := Assemble(entries, budget, domain.TranslationInfo{}, domain.ContactInfo{})
	require.NotNil(t, block)
	require.Len(t, block.Included, 2)
	require.NotContains(t, block.Text, "Question number 2")
}

func TestAssemble_NothingFits(t *testing.T) {
	block := Assemble(scoredEntries(1), utf8.RuneCountInString(groundingDirective)+5, domain.TranslationInfo{}, domain.ContactInfo{})
	require.Nil(t, block)
}

func TestAssemble_AppendsContactVerbatim(t *testing.T) {
	contact := domain.ContactInfo{Phone: "+1 (555) 010-0199", Email: "help@acme.test"}
	block := Assemble(scoredEntries(1), 2000, domain.TranslationInfo{}, contact)
	require.NotNil(t, block)
	require.Contains(t, block.Text, "+1 (555) 010-0199")
	require.Contains(t, block.Text, "help@acme.test")
	require.True(t, strings.Index(block.Text, "Answer number 0") < strings.Index(block.Text, "help@acme.test"))
}

func TestAssemble_TranslationNote(t *testing.T) {
	info := domain.TranslationInfo{WasTranslated: true, SourceLanguage: "es", Original: "¿Horario?", Translated: "Hours?"}
	block := Assemble(scoredEntries(1), 2000, info, domain.ContactInfo{})
	require.NotNil(t, block)
	require.Contains(t, block.Text, "¿Horario?")
	require.Contains(t, block.Text, "Reply in the customer's language")

	plain := Assemble(scoredEntries(1), 2000, domain.TranslationInfo{}, domain.ContactInfo{})
	require.NotContains(t, plain.Text, "Reply in the customer's language")
}
