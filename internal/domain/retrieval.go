package domain

// ScoredEntry pairs a knowledge entry with its similarity to one query.
type ScoredEntry struct {
	Entry    KnowledgeEntry `json:"entry"`
	Index    int            `json:"index"`
	Score    float64        `json:"score"`
	Category string         `json:"category"`
}

// TranslationInfo records whether the query was translated before scoring.
type TranslationInfo struct {
	WasTranslated  bool   `json:"wasTranslated"`
	SourceLanguage string `json:"sourceLanguage"`
	Original       string `json:"original"`
	Translated     string `json:"translated"`
}

// RetrievalResult is the ordered, thresholded, top-K output of one scoring call.
type RetrievalResult struct {
	Entries     []ScoredEntry   `json:"entries"`
	MaxScore    float64         `json:"maxScore"`
	Translation TranslationInfo `json:"translation"`
}
