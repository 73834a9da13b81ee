package chat

import (
	"fmt"
	"strings"

	"github.com/typemate/typemate/internal/core/astro"
	"github.com/typemate/typemate/internal/core/model"
	"github.com/typemate/typemate/internal/core/persona"
)

// buildSystemPrompt combines the persona, what we know about the user and
// the memories retrieved for this turn.
func buildSystemPrompt(p persona.Persona, profile *model.Profile, memories []model.MemoryMatch) string {
	var b strings.Builder
	b.WriteString(p.Prompt)
	b.WriteString("\nKeep replies conversational and under 150 words unless the user asks for more.")

	if profile != nil {
		var facts []string
		if profile.DisplayName != "" {
			facts = append(facts, "- Name: "+profile.DisplayName)
		}
		if profile.MBTIType != "" {
			facts = append(facts, "- MBTI type: "+profile.MBTIType)
		}
		if profile.ZodiacSign != "" {
			sign := astro.Sign(profile.ZodiacSign)
			facts = append(facts, fmt.Sprintf("- Zodiac sign: %s (%s)", sign, sign.Element()))
		}
		if len(facts) > 0 {
			b.WriteString("\n\nAbout the user:\n")
			b.WriteString(strings.Join(facts, "\n"))
		}
	}

	if len(memories) > 0 {
		b.WriteString("\n\nThings you remember from earlier conversations. Use them naturally; do not list them back:\n")
		for _, m := range memories {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", m.CreatedAt.Format("2006-01-02"), m.Role, m.Content)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
