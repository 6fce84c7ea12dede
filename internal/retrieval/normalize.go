package retrieval

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// minQueryRunes is the shortest normalized query that is scored at all.
const minQueryRunes = 2

// stopwords are English function words that carry no retrieval signal.
var stopwords = toSet(
	"a", "about", "am", "an", "and", "any", "are", "as", "at", "be", "by", "can", "could",
	"did", "do", "does", "for", "from", "get", "had", "has", "have", "hello", "hey", "hi",
	"how", "i", "if", "in", "is", "it", "its", "know", "me", "my", "of", "on", "or", "our",
	"please", "should", "so", "tell", "that", "the", "there", "this", "to", "us", "was",
	"we", "were", "what", "which", "who", "will", "with", "would", "you", "your", "yours",
)

// englishMarkers are function words that do not double as common words in
// the other languages visitors write in ("a", "me", "do", "has" and "was" do).
var englishMarkers = toSet(
	"about", "and", "any", "are", "be", "could", "did", "does", "have", "hello", "hey",
	"how", "is", "it", "its", "know", "of", "our", "please", "should", "tell", "that",
	"the", "there", "they", "this", "what", "when", "where", "which", "who", "why",
	"with", "would", "you", "your", "yours",
)

// concepts folds support-desk synonyms onto one canonical token so that
// "what time do you open" and "what are your hours" share vocabulary.
// Lookups run before stopword removal, so question words such as "when"
// and "where" count when they name a concept.
var concepts = buildConcepts(map[string][]string{
	"hours":    {"hour", "hours", "time", "times", "open", "opens", "opening", "close", "closes", "closing", "closed", "schedule", "when"},
	"price":    {"price", "prices", "pricing", "cost", "costs", "fee", "fees", "charge", "charges", "rate", "rates", "much", "expensive", "cheap"},
	"contact":  {"contact", "phone", "call", "email", "reach", "number"},
	"location": {"location", "address", "where", "located", "directions", "find"},
	"shipping": {"ship", "ships", "shipping", "delivery", "deliver", "delivers", "shipped"},
	"refund":   {"refund", "refunds", "return", "returns", "exchange", "exchanges"},
	"booking":  {"book", "booking", "appointment", "appointments", "reservation", "reservations", "reserve"},
	"payment":  {"pay", "paying", "payment", "payments", "card", "cards", "cash"},
})

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func buildConcepts(groups map[string][]string) map[string]string {
	out := make(map[string]string)
	for canonical, words := range groups {
		for _, w := range words {
			out[w] = canonical
		}
	}
	return out
}

// foldDiacritics strips combining marks: "café" → "cafe".
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Normalize lower-cases s, folds diacritics, replaces every rune that is not
// a letter or digit with a space and collapses whitespace.
func Normalize(s string) string {
	s = foldDiacritics(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokens returns the distinct informative tokens of s in first-seen order.
func Tokens(s string) []string {
	return tokensOf(Normalize(s))
}

func tokensOf(normalized string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, word := range strings.Fields(normalized) {
		tok, ok := informative(word)
		if !ok {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

func informative(word string) (string, bool) {
	if c, ok := concepts[word]; ok {
		return c, true
	}
	if _, ok := stopwords[word]; ok {
		return "", false
	}
	stemmed := stem(word)
	if c, ok := concepts[stemmed]; ok {
		return c, true
	}
	return stemmed, true
}

// stem applies a few English suffix rules. It only needs to be consistent,
// not linguistically correct.
func stem(w string) string {
	switch n := len(w); {
	case n > 4 && strings.HasSuffix(w, "ies"):
		return w[:n-3] + "y"
	case n > 5 && strings.HasSuffix(w, "ing"):
		return w[:n-3]
	case n > 4 && strings.HasSuffix(w, "ed"):
		return w[:n-2]
	case n > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss"):
		return w[:n-1]
	}
	return w
}

// looksForeign guesses whether text is written in something other than
// English: mostly non-Latin letters, or at least three words none of which
// is an English marker or a support concept.
func looksForeign(text string) bool {
	letters, nonLatin := 0, 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if !unicode.Is(unicode.Latin, r) {
			nonLatin++
		}
	}
	if letters == 0 {
		return false
	}
	if float64(nonLatin)/float64(letters) > 0.3 {
		return true
	}
	words := strings.Fields(Normalize(text))
	if len(words) < 3 {
		return false
	}
	for _, w := range words {
		if _, ok := englishMarkers[w]; ok {
			return false
		}
		if _, ok := concepts[w]; ok {
			return false
		}
	}
	return true
}
