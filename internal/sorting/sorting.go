// Package sorting orders bean groups by a named sort mode.
package sorting

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/selfagency/beans-vscode-sub002/internal/bean"
)

// Mode names a comparator chain.
type Mode string

const (
	ModeStatusPriority Mode = "status-priority-type-title"
	ModePriorityStatus Mode = "priority-status-type-title"
	ModeUpdated        Mode = "updated"
	ModeCreated        Mode = "created"
	ModeID             Mode = "id"
)

// DefaultMode is used when nothing else is configured.
const DefaultMode = ModeStatusPriority

var modes = []Mode{ModeStatusPriority, ModePriorityStatus, ModeUpdated, ModeCreated, ModeID}

// Modes returns the supported sort modes.
func Modes() []Mode { return slices.Clone(modes) }

// IsValid reports whether m is a supported mode.
func (m Mode) IsValid() bool { return slices.Contains(modes, m) }

// ParseMode validates a sort mode name. An empty name selects DefaultMode.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultMode, nil
	}
	m := Mode(s)
	if !m.IsValid() {
		names := make([]string, len(modes))
		for i, v := range modes {
			names[i] = string(v)
		}
		return "", fmt.Errorf("unknown sort mode %q (valid: %s)", s, strings.Join(names, ", "))
	}
	return m, nil
}

// Compare returns the comparator for mode, or nil for an unknown mode.
// The comparator holds a collator and must not be shared between goroutines.
func Compare(mode Mode) func(a, b bean.Bean) int {
	col := collate.New(language.Und)
	title := func(a, b bean.Bean) int { return col.CompareString(a.Title, b.Title) }

	switch mode {
	case ModeStatusPriority:
		return func(a, b bean.Bean) int {
			if c := byStatus(a, b); c != 0 {
				return c
			}
			if c := byPriority(a, b); c != 0 {
				return c
			}
			if c := byType(a, b); c != 0 {
				return c
			}
			return title(a, b)
		}
	case ModePriorityStatus:
		return func(a, b bean.Bean) int {
			if c := byPriority(a, b); c != 0 {
				return c
			}
			if c := byStatus(a, b); c != 0 {
				return c
			}
			if c := byType(a, b); c != 0 {
				return c
			}
			return title(a, b)
		}
	case ModeUpdated:
		return func(a, b bean.Bean) int { return b.UpdatedAt.Compare(a.UpdatedAt) }
	case ModeCreated:
		return func(a, b bean.Bean) int { return b.CreatedAt.Compare(a.CreatedAt) }
	case ModeID:
		return func(a, b bean.Bean) int { return col.CompareString(a.ID, b.ID) }
	}
	return nil
}

func byStatus(a, b bean.Bean) int   { return bean.StatusRank(a.Status) - bean.StatusRank(b.Status) }
func byPriority(a, b bean.Bean) int { return bean.PriorityRank(a.Priority) - bean.PriorityRank(b.Priority) }
func byType(a, b bean.Bean) int     { return bean.TypeRank(a.Type) - bean.TypeRank(b.Type) }

// Sort returns a stably sorted copy of beans. An unknown mode is logged
// and the input is returned as is.
func Sort(beans []bean.Bean, mode Mode) []bean.Bean {
	return sortWith(slog.Default(), beans, mode)
}

func sortWith(log *slog.Logger, beans []bean.Bean, mode Mode) []bean.Bean {
	cmp := Compare(mode)
	if cmp == nil {
		log.Warn("unknown sort mode; leaving order unchanged", "mode", string(mode))
		return beans
	}
	out := slices.Clone(beans)
	slices.SortStableFunc(out, cmp)
	return out
}
