package grouping

import (
	"fmt"
	"strings"
)

// FormatGroup renders one group as the classifier sees it:
//
//	(2) [reply to 0] alice: ❝first line
//	second line [uploaded attachment/image]❞ (edited)
//	[reactions: 👍 2, 😕 1]
//
// The quote glyphs keep user text visually separate from the scaffolding even
// when the content itself contains quotes or colons.
func FormatGroup(g *Group) string {
	var b strings.Builder

	fmt.Fprintf(&b, "(%d) ", g.RelIndex)
	if g.ReplyEdge != NoEdge {
		fmt.Fprintf(&b, "[reply to %d] ", g.ReplyEdge)
	}
	fmt.Fprintf(&b, "%s: ❝", g.AuthorName)

	edited := false
	var reactions []string
	for i, msg := range g.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(msg.Content)
		if msg.Attachments {
			b.WriteString(" [uploaded attachment/image]")
		}
		if msg.Edited {
			edited = true
		}
		for _, r := range msg.Reactions {
			reactions = append(reactions, fmt.Sprintf("%s %d", r.Emoji, r.Count))
		}
	}
	b.WriteString("❞")

	if edited {
		b.WriteString(" (edited)")
	}
	if len(reactions) > 0 {
		fmt.Fprintf(&b, "\n[reactions: %s]", strings.Join(reactions, ", "))
	}
	return strings.TrimSpace(b.String())
}

// FormatWindow renders every group in the window, in order.
func FormatWindow(w *Window) []string {
	out := make([]string, len(w.Groups))
	for i, g := range w.Groups {
		out[i] = FormatGroup(g)
	}
	return out
}
