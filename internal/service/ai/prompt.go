package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/chat-relay/backend/internal/model/persona"
)

const basePrompt = `You are a friendly banking assistant chatting with a customer in a web widget.
Answer in short paragraphs, in the language the customer writes in.
Never invent account data; if you need personal information, say the customer can log in for tailored help.`

const recommendationQuery = "I just logged in. Based on my profile, which of your products would you recommend and why?"

// BuildSystemPrompt renders the system prompt for a conversation. A nil
// persona means the customer has not logged in yet.
func BuildSystemPrompt(p *persona.Persona) string {
	if p == nil {
		return basePrompt + "\n\nThe customer is anonymous."
	}

	var builder strings.Builder
	builder.WriteString(basePrompt)
	builder.WriteString("\n\nCustomer profile:\n")
	builder.WriteString(fmt.Sprintf("- Segment: %s\n", p.Name))
	if desc := strings.TrimSpace(p.Description); desc != "" {
		builder.WriteString(fmt.Sprintf("- Situation: %s\n", desc))
	}
	builder.WriteString("Tailor examples and product suggestions to this profile.")
	return builder.String()
}
