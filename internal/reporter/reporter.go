package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/selfagency/beans-vscode-sub002/internal/bean"
	"github.com/selfagency/beans-vscode-sub002/internal/rank"
	"github.com/selfagency/beans-vscode-sub002/internal/reparent"
	"github.com/selfagency/beans-vscode-sub002/internal/sorting"
	"github.com/selfagency/beans-vscode-sub002/internal/ui"
)

const maxTitle = 60

func truncate(title string, n int) string {
	r := []rune(title)
	if len(r) <= n {
		return title
	}
	return string(r[:n-3]) + "..."
}

// beanLine formats the shared columns: icon, code, type, priority, title.
func beanLine(b bean.Bean, width int) string {
	parts := []string{ui.StatusIcon(b.Status), ui.Code(b), ui.TypeLabel(b.Type)}
	if m := ui.PriorityMark(b.Priority); m != "" {
		parts = append(parts, m)
	}
	parts = append(parts, truncate(b.Title, width))
	return strings.Join(parts, " ")
}

// PrintTree writes nodes with box-drawing connectors. Nodes hiding an
// in-progress descendant get the active marker.
func PrintTree(w io.Writer, nodes []sorting.Node) {
	for _, n := range nodes {
		fmt.Fprintln(w, nodeLine(n))
		printChildren(w, n.Children, "")
	}
}

func printChildren(w io.Writer, nodes []sorting.Node, prefix string) {
	for i, n := range nodes {
		branch, next := "├── ", "│   "
		if i == len(nodes)-1 {
			branch, next = "└── ", "    "
		}
		fmt.Fprintf(w, "%s%s\n", ui.Dim(prefix+branch), nodeLine(n))
		printChildren(w, n.Children, prefix+next)
	}
}

func nodeLine(n sorting.Node) string {
	line := beanLine(n.Bean, maxTitle)
	if n.ActiveDescendant && n.Bean.Status != bean.StatusInProgress {
		line += " " + ui.ActiveMark()
	}
	return line
}

// PrintList writes one line per bean.
func PrintList(w io.Writer, beans []bean.Bean) {
	for _, b := range beans {
		fmt.Fprintf(w, "  %s\n", beanLine(b, maxTitle))
	}
}

// PrintSearch writes ranked results with their scores.
func PrintSearch(w io.Writer, query string, results []rank.Scored) {
	if len(results) == 0 {
		fmt.Fprintf(w, "No beans match %s\n", ui.Bold(query))
		return
	}
	for _, r := range results {
		fmt.Fprintf(w, "  %s %s\n", ui.Dim(fmt.Sprintf("%5d", r.Score)), beanLine(r.Bean, maxTitle))
	}
}

// PrintBean writes the detail view of one bean.
func PrintBean(w io.Writer, b bean.Bean) {
	fmt.Fprintf(w, "%s %s\n", ui.Code(b), ui.Bold(b.Title))
	fmt.Fprintf(w, "ID:        %s\n", ui.Dim(b.ID))
	fmt.Fprintf(w, "Status:    %s %s\n", ui.StatusIcon(b.Status), b.Status)
	fmt.Fprintf(w, "Type:      %s\n", ui.TypeLabel(b.Type))
	fmt.Fprintf(w, "Priority:  %s\n", b.EffectivePriority())
	if b.HasParent() {
		fmt.Fprintf(w, "Parent:    %s\n", b.Parent)
	}
	if len(b.Tags) > 0 {
		fmt.Fprintf(w, "Tags:      %s\n", strings.Join(b.Tags, ", "))
	}
	if len(b.Blocking) > 0 {
		fmt.Fprintf(w, "Blocking:  %s\n", strings.Join(b.Blocking, ", "))
	}
	if len(b.BlockedBy) > 0 {
		fmt.Fprintf(w, "Blocked by: %s\n", strings.Join(b.BlockedBy, ", "))
	}
	if body := strings.TrimSpace(b.Body); body != "" {
		fmt.Fprintf(w, "\n%s\n", body)
	}
}

// PrintResult writes a validation outcome.
func PrintResult(w io.Writer, candidate, parent string, res reparent.Result) {
	target := parent
	if target == "" {
		target = "top level"
	}
	if res.Valid {
		fmt.Fprintf(w, "%s %s may move under %s\n", ui.Green("✓"), ui.Bold(candidate), target)
		return
	}
	fmt.Fprintf(w, "%s %s\n", ui.Red("✗"), res.Reason)
}

// PrintTotals writes a per-status count footer.
func PrintTotals(w io.Writer, beans []bean.Bean) {
	counts := make(map[bean.Status]int)
	for _, b := range beans {
		counts[b.Status]++
	}
	fmt.Fprintf(w, "%s\n", ui.Cyan("──────────────────────────"))
	parts := []string{fmt.Sprintf("%d beans", len(beans))}
	for _, s := range bean.Statuses() {
		if n := counts[s]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d %s", ui.StatusIcon(s), n, s))
		}
	}
	fmt.Fprintln(w, strings.Join(parts, "  "))
}

// WriteJSON writes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
