package engine

import (
	"strings"

	"docgen-backend/internal/jobs"
)

// Assemble renders the final markdown body. It is a pure function of the
// document title and the ordered sections.
func Assemble(title string, sections []jobs.Section) string {
	blocks := make([]string, 0, len(sections)+1)
	if title = strings.TrimSpace(title); title != "" {
		blocks = append(blocks, "# "+title)
	}
	for _, s := range sections {
		blocks = append(blocks, "## "+strings.TrimSpace(s.Title)+"\n\n"+strings.TrimSpace(s.Content))
	}
	return strings.Join(blocks, "\n\n") + "\n"
}
