// Package chat answers pneumonia questions from a fixed keyword table.
package chat

import "strings"

// Entry maps any of its keywords to a response.
type Entry struct {
	Topic    string
	Keywords []string
	Response string
}

// DefaultResponse is used when no keyword matches.
const DefaultResponse = "I'm here to help with questions about pneumonia. You can ask about symptoms, causes, treatment, prevention, or diagnosis."

// Table is checked in order; the first entry with a matching keyword wins.
var Table = []Entry{
	{
		Topic:    "symptoms",
		Keywords: []string{"symptom", "feel"},
		Response: "Common symptoms of pneumonia include chest pain, coughing, fatigue, fever, shortness of breath, and in some cases, confusion or low energy, especially in older adults.",
	},
	{
		Topic:    "causes",
		Keywords: []string{"cause", "why", "how get"},
		Response: "Pneumonia is typically caused by infection with bacteria, viruses, or fungi. The most common cause is the bacterium Streptococcus pneumoniae. Risk factors include smoking, weakened immune system, and certain chronic illnesses.",
	},
	{
		Topic:    "treatment",
		Keywords: []string{"treat", "cure", "medicine"},
		Response: "Treatment depends on the cause of pneumonia. Bacterial pneumonia is treated with antibiotics. Viral pneumonia may be treated with antiviral medications. Rest, hydration, and over-the-counter medications for fever and pain are also recommended.",
	},
	{
		Topic:    "prevention",
		Keywords: []string{"prevent", "avoid"},
		Response: "Vaccination is key to preventing pneumonia. Both pneumococcal and flu vaccines can help. Other preventive measures include good hygiene practices, avoiding smoking, and maintaining good overall health.",
	},
	{
		Topic:    "diagnosis",
		Keywords: []string{"diagnos", "test"},
		Response: "Pneumonia is diagnosed through physical examinations, chest X-rays, blood tests, pulse oximetry, sputum tests, and sometimes CT scans or pleural fluid cultures in more severe cases.",
	},
	{
		Topic:    "risk",
		Keywords: []string{"risk", "danger"},
		Response: "People at higher risk for pneumonia include older adults, young children, smokers, people with chronic diseases, and those with weakened immune systems.",
	},
}

// Bot answers from its table.
type Bot struct {
	entries  []Entry
	fallback string
}

// New returns a Bot over Table.
func New() *Bot {
	return &Bot{entries: Table, fallback: DefaultResponse}
}

// Reply matches message case-insensitively against the table.
func (b *Bot) Reply(message string) string {
	msg := strings.ToLower(message)
	for _, e := range b.entries {
		for _, kw := range e.Keywords {
			if strings.Contains(msg, kw) {
				return e.Response
			}
		}
	}
	return b.fallback
}
