package ui

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/selfagency/beans-vscode-sub002/internal/bean"
)

// Sprint color functions for building styled strings.
var (
	Bold        = color.New(color.Bold).SprintFunc()
	Dim         = color.New(color.Faint).SprintFunc()
	Cyan        = color.New(color.FgCyan).SprintFunc()
	Green       = color.New(color.FgGreen).SprintFunc()
	Red         = color.New(color.FgRed).SprintFunc()
	Yellow      = color.New(color.FgYellow).SprintFunc()
	Magenta     = color.New(color.FgMagenta).SprintFunc()
	Blue        = color.New(color.FgBlue).SprintFunc()
	BoldCyan    = color.New(color.Bold, color.FgCyan).SprintFunc()
	BoldGreen   = color.New(color.Bold, color.FgGreen).SprintFunc()
	BoldRed     = color.New(color.Bold, color.FgRed).SprintFunc()
	BoldYellow  = color.New(color.Bold, color.FgYellow).SprintFunc()
	BoldMagenta = color.New(color.Bold, color.FgMagenta).SprintFunc()
	BoldWhite   = color.New(color.Bold, color.FgWhite).SprintFunc()
)

// PrintBanner renders the beanline header to w.
func PrintBanner(w io.Writer, subtitle string) {
	brand := color.New(color.Bold, color.FgMagenta)
	brand.Fprint(w, "🫘 beanline")
	if subtitle != "" {
		fmt.Fprintf(w, " %s", Dim(subtitle))
	}
	fmt.Fprintln(w)
}

// codeColors is a palette of distinct bold colors for bean codes.
var codeColors = []func(a ...interface{}) string{
	BoldMagenta,
	BoldCyan,
	BoldYellow,
	BoldGreen,
	color.New(color.Bold, color.FgHiBlue).SprintFunc(),
	color.New(color.Bold, color.FgHiRed).SprintFunc(),
}

// codeColorIndex hashes a bean ID to a palette index.
func codeColorIndex(id string) int {
	var h uint32
	for _, c := range id {
		h = h*31 + uint32(c)
	}
	return int(h % uint32(len(codeColors)))
}

// Code returns the bean's short code in a color derived from its ID.
func Code(b bean.Bean) string {
	return codeColors[codeColorIndex(b.ID)](b.ShortCode())
}

// StatusIcon returns a colored status icon.
func StatusIcon(status bean.Status) string {
	switch status {
	case bean.StatusCompleted:
		return Green("✓")
	case bean.StatusInProgress:
		return Cyan("●")
	case bean.StatusScrapped:
		return Dim("✗")
	case bean.StatusDraft:
		return Dim("◇")
	default:
		return Dim("◌")
	}
}

// TypeLabel returns a colored type name.
func TypeLabel(t bean.Type) string {
	switch t {
	case bean.TypeMilestone:
		return BoldMagenta(string(t))
	case bean.TypeEpic:
		return BoldCyan(string(t))
	case bean.TypeFeature:
		return Blue(string(t))
	case bean.TypeBug:
		return Red(string(t))
	default:
		return Dim(string(t))
	}
}

// PriorityMark returns a short marker for notable priorities, or "".
func PriorityMark(p bean.Priority) string {
	switch p {
	case bean.PriorityCritical:
		return BoldRed("‼")
	case bean.PriorityHigh:
		return Yellow("!")
	case bean.PriorityDeferred:
		return Dim("↓")
	default:
		return ""
	}
}

// ActiveMark flags a collapsed node that hides in-progress work.
func ActiveMark() string { return BoldYellow("⚡") }
