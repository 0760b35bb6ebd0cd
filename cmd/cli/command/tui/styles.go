package tui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	Accent    = lipgloss.Color("#7C3AED")
	DimGray   = lipgloss.Color("#6B7280")
	LightGray = lipgloss.Color("#9CA3AF")
	White     = lipgloss.Color("#F9FAFB")
	Green     = lipgloss.Color("#10B981")
	Yellow    = lipgloss.Color("#F59E0B")
	Red       = lipgloss.Color("#EF4444")
)

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(White).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(DimGray)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(LightGray)

	SelectedStyle = lipgloss.NewStyle().
			Foreground(White).
			Background(Accent).
			Padding(0, 1)

	RowStyle = lipgloss.NewStyle().
			Padding(0, 1)

	PendingStyle = lipgloss.NewStyle().
			Foreground(DimGray).
			Italic(true).
			Padding(0, 1)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Red)

	FavoriteStyle = lipgloss.NewStyle().
			Foreground(Yellow)

	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Accent).
			Padding(0, 1)
)

// status colors
var statusStyles = map[string]lipgloss.Style{
	"watching":      lipgloss.NewStyle().Foreground(Green),
	"completed":     lipgloss.NewStyle().Foreground(Accent),
	"plan_to_watch": lipgloss.NewStyle().Foreground(LightGray),
	"dropped":       lipgloss.NewStyle().Foreground(Red),
}

func statusStyle(status string) lipgloss.Style {
	if s, ok := statusStyles[status]; ok {
		return s
	}
	return DimStyle
}
