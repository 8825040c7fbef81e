// Package report renders a fetched message batch as a summary table.
package report

import (
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/spachava753/gimap/gmail"
)

// Title heads the summary table.
const Title = "Email Messages"

// dateFormat is fixed and textually sortable.
const dateFormat = time.RFC3339

// Render produces the summary table: uid and Date right-aligned, Subject
// left-aligned, one row per message in fetch order. No sorting is performed.
func Render(batch []*gmail.Message) string {
	right := lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
	left := lipgloss.NewStyle().Align(lipgloss.Left).Padding(0, 1)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("uid", "Date", "Subject").
		StyleFunc(func(_, col int) lipgloss.Style {
			if col == 2 {
				return left
			}
			return right
		})
	for _, msg := range batch {
		t.Row(msg.UID, msg.Date.Format(dateFormat), msg.Subject)
	}
	return Title + "\n" + t.String()
}
