package suggest

import "strings"

var genericSuggestions = []string{
	"How can I help you today?",
	"What would you like to know?",
	"Tell me what you need help with",
}

var retrySuggestions = []string{
	"I want to try again",
	"Let me ask something else",
	"I need help with a different topic",
}

var defaultTypeSuggestions = []string{
	"What services do you offer?",
	"How can I contact you?",
	"What are your business hours?",
}

var typeSuggestions = map[string][]string{
	"restaurant": {
		"What's on your menu today?",
		"Do you have vegetarian options?",
		"What are your delivery hours?",
		"Can I make a reservation?",
		"What are your specials?",
	},
	"retail": {
		"What products do you sell?",
		"Do you have this in stock?",
		"What are your return policies?",
		"Do you offer discounts?",
		"What are your store hours?",
	},
	"real_estate": {
		"What properties are available?",
		"What are your rental prices?",
		"Do you offer property management?",
		"What areas do you cover?",
		"How do I schedule a viewing?",
	},
	"healthcare": {
		"How do I book an appointment?",
		"What services do you offer?",
		"Do you accept my insurance?",
		"What are your office hours?",
		"How do I get my test results?",
	},
	"automotive": {
		"What services do you offer?",
		"How much does a service cost?",
		"Do you have parts in stock?",
		"Can I schedule an appointment?",
		"What are your warranty policies?",
	},
	"beauty": {
		"What services do you offer?",
		"How do I book an appointment?",
		"What are your prices?",
		"Do you have any specials?",
		"What are your salon hours?",
	},
	"fitness": {
		"What classes do you offer?",
		"What are your membership rates?",
		"Do you have personal training?",
		"What are your gym hours?",
		"Do you offer trial memberships?",
	},
	"education": {
		"What courses do you offer?",
		"How do I enroll?",
		"What are your tuition rates?",
		"Do you offer financial aid?",
		"What are your class schedules?",
	},
}

// Generic returns a copy of the fixed greeting triad.
func Generic() []string {
	return append([]string(nil), genericSuggestions...)
}

// Retry returns a copy of the suggestions offered after a failure.
func Retry() []string {
	return append([]string(nil), retrySuggestions...)
}

func forBusinessType(businessType string) []string {
	key := strings.ToLower(strings.TrimSpace(businessType))
	key = strings.ReplaceAll(strings.ReplaceAll(key, " ", "_"), "-", "_")
	if list, ok := typeSuggestions[key]; ok {
		return list
	}
	return defaultTypeSuggestions
}
