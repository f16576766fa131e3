package transcript

import (
	"fmt"
	"strings"
)

// Formatter renders conversation records for console display
type Formatter struct{}

// NewFormatter creates a new transcript formatter
func NewFormatter() *Formatter {
	return &Formatter{}
}

// FormatRecord formats one conversation record
func (f *Formatter) FormatRecord(r Record) string {
	switch r.Kind {
	case RecordGreeting, RecordStatus:
		return fmt.Sprintf("[agent] %s", r.Text)

	case RecordPrompt:
		if len(r.Options) == 0 {
			return fmt.Sprintf("[agent] %s", r.Text)
		}
		var b strings.Builder
		fmt.Fprintf(&b, "[agent] %s\n", r.Text)
		for i, opt := range r.Options {
			fmt.Fprintf(&b, "  %d. %s", i+1, opt.Label)
			if opt.Tooltip != "" {
				fmt.Fprintf(&b, " - %s", opt.Tooltip)
			}
			if i < len(r.Options)-1 {
				b.WriteByte('\n')
			}
		}
		return b.String()

	case RecordAnswer:
		return fmt.Sprintf("[you] %s", r.Text)

	case RecordInsight:
		return fmt.Sprintf("[agent] insight: %s", r.Text)

	default:
		return fmt.Sprintf("[agent] %s", r.Text)
	}
}
