package cli

import "github.com/fatih/color"

var (
	Bold   = color.New(color.Bold).SprintFunc()
	Dim    = color.New(color.Faint).SprintFunc()
	Cyan   = color.New(color.FgCyan).SprintFunc()
	Green  = color.New(color.FgGreen).SprintFunc()
	Red    = color.New(color.FgRed).SprintFunc()
	Yellow = color.New(color.FgYellow).SprintFunc()
)

// statusColor paints a task status.
func statusColor(status string) string {
	switch status {
	case "success":
		return Green(status)
	case "failure":
		return Red(status)
	case "pending":
		return Yellow(status)
	default:
		return status
	}
}
