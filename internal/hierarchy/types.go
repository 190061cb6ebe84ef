package hierarchy

import (
	"fmt"
	"strings"

	"github.com/selfagency/beans-vscode-sub002/internal/bean"
)

// Mode selects how roots are chosen.
type Mode string

const (
	// ModeNested shows beans under their parents.
	ModeNested Mode = "nested"
	// ModeFlat lists every bean at the top level.
	ModeFlat Mode = "flat"
)

// ParseMode validates a view mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeNested, "":
		return ModeNested, nil
	case ModeFlat:
		return ModeFlat, nil
	}
	return "", fmt.Errorf("unknown view mode %q (want nested or flat)", s)
}

// Forest is the materialized parent/child view of one snapshot.
// It is immutable once returned by Materialize.
type Forest struct {
	mode     Mode
	beans    []bean.Bean         // snapshot copy, input order
	byID     map[string]int      // id -> index into beans
	children map[string][]int    // parent id -> child indexes, input order
	roots    []int               // root indexes
	active   map[string]struct{} // ids with an in-progress descendant
}
