package service

import (
	"fmt"
	"strings"

	"github.com/lexi-tutor/lexi-api/internal/model"
)

const lexiPersona = `You are Lexi, a warm and patient tutor for children. ` +
	`Help with homework by guiding the child to the answer step by step instead of just giving it. ` +
	`Use short sentences and words a child in their grade understands. ` +
	`Stay on learning topics, keep answers safe for kids, and encourage effort.`

// SystemPrompt composes the persona instruction for a child.
func SystemPrompt(p *model.UserProfile) string {
	var b strings.Builder
	b.WriteString(lexiPersona)

	name := ""
	if p != nil {
		name = strings.TrimSpace(p.FirstName)
	}
	if name != "" {
		fmt.Fprintf(&b, " Address the child by their first name, %s.", name)
	}
	if p != nil && strings.TrimSpace(p.Grade) != "" {
		fmt.Fprintf(&b, " They are in grade %s.", strings.TrimSpace(p.Grade))
	}
	if p != nil && strings.TrimSpace(p.City) != "" {
		fmt.Fprintf(&b, " They live in %s; use local examples when it helps.", strings.TrimSpace(p.City))
	}
	return b.String()
}
