package chat

import (
	"sort"
	"strings"

	"github.com/laralabs/lara/internal/memory"
)

// maxRecentTurns caps the recent-conversation block injected into the
// completion prompt.
const maxRecentTurns = 5

// BuildContext merges similarity hits and recent conversation points into
// a single text block for prompt injection. Hits keep their similarity
// ranking; recent points are re-sorted chronologically and capped at the
// last maxRecentTurns. Both blocks empty yields an empty string, which is
// a valid context.
//
// No deduplication happens between the two blocks: a turn that is both a
// strong similarity hit and part of the recent window appears twice.
func BuildContext(hits []memory.Hit, recent []memory.Point) string {
	var b strings.Builder

	if len(hits) > 0 {
		b.WriteString("Relevant context from memory:\n")
		for _, h := range hits {
			b.WriteString("- ")
			b.WriteString(h.Text)
			b.WriteString("\n")
		}
	}

	if len(recent) > 0 {
		ordered := make([]memory.Point, len(recent))
		copy(ordered, recent)
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		})
		if len(ordered) > maxRecentTurns {
			ordered = ordered[len(ordered)-maxRecentTurns:]
		}

		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Recent conversation:\n")
		for _, p := range ordered {
			b.WriteString("- ")
			b.WriteString(p.Text)
			b.WriteString("\n")
		}
	}

	return b.String()
}
