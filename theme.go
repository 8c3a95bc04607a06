package cite

// Theme defines semantic color mappings using ANSI color indices (0-15).
// The user's terminal theme determines the actual RGB values, so the app
// automatically matches any color scheme.
type Theme struct {
	UserMsg  int // User message accent
	Citation int // Inline citation badges
	ToolCall int // Tool call header
	Error    int // Error messages
	Success  int // Completed tool calls
	Muted    int // Status bar, excerpts, placeholders
	CodeBg   int // Code block background
	Accent   int // Headings, links, source titles
}

// DefaultTheme returns the default ANSI color mapping.
func DefaultTheme() Theme {
	return Theme{
		UserMsg:  4,
		Citation: 6,
		ToolCall: 3,
		Error:    1,
		Success:  2,
		Muted:    8,
		CodeBg:   0,
		Accent:   5,
	}
}
