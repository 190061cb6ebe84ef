// Package reparent decides whether a bean may be moved under a new parent
// before the move is sent to the beans CLI.
package reparent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/selfagency/beans-vscode-sub002/internal/bean"
)

// DefaultMaxDepth bounds the ancestor walk.
const DefaultMaxDepth = 10

// Lookup fetches a bean by id. Each ancestor hop is one call.
type Lookup func(ctx context.Context, id string) (bean.Bean, error)

// RejectKind classifies a rejected move.
type RejectKind string

const (
	RejectNone  RejectKind = ""
	RejectSelf  RejectKind = "self"
	RejectType  RejectKind = "type"
	RejectCycle RejectKind = "cycle"
)

// Result is the outcome of a validation. Rejections are values, not errors.
type Result struct {
	Valid  bool       `json:"valid"`
	Kind   RejectKind `json:"kind,omitempty"`
	Reason string     `json:"reason,omitempty"`
}

func accept() Result { return Result{Valid: true} }

func reject(kind RejectKind, reason string) Result {
	return Result{Kind: kind, Reason: reason}
}

// Validator checks reparent requests. It keeps no per-call state and is
// safe for concurrent use.
type Validator struct {
	maxDepth int
	log      *slog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithMaxDepth sets the ancestor walk cap. Values below 1 are ignored.
func WithMaxDepth(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.maxDepth = n
		}
	}
}

// WithLogger sets the logger used for walk warnings.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.log = l
		}
	}
}

// New creates a Validator.
func New(opts ...Option) *Validator {
	v := &Validator{maxDepth: DefaultMaxDepth, log: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// MaxDepth returns the ancestor walk cap.
func (v *Validator) MaxDepth() int { return v.maxDepth }

// Validate decides whether candidate may move under proposed. A nil
// proposed parent means moving to the top level.
//
// The cycle check walks proposed's ancestors through lookup. A failed
// lookup or a walk that reaches the depth cap is logged and treated as
// "no cycle found".
func (v *Validator) Validate(ctx context.Context, candidate bean.Bean, proposed *bean.Bean, lookup Lookup) Result {
	if proposed == nil {
		return accept()
	}

	if proposed.ID == candidate.ID {
		return reject(RejectSelf, "cannot make a bean its own parent.")
	}

	if !bean.CanParent(candidate.Type, proposed.Type) {
		return reject(RejectType, typeReason(candidate.Type, proposed.Type))
	}

	if v.descendsFrom(ctx, *proposed, candidate.ID, lookup) {
		return reject(RejectCycle, fmt.Sprintf(
			"cannot move %s under %s: %s is a descendant of %s, which would create a cycle.",
			candidate.ID, proposed.ID, proposed.ID, candidate.ID))
	}

	return accept()
}

// descendsFrom walks start's parent chain looking for ancestorID.
func (v *Validator) descendsFrom(ctx context.Context, start bean.Bean, ancestorID string, lookup Lookup) bool {
	cur := start
	for hops := 0; cur.HasParent(); hops++ {
		if cur.Parent == ancestorID {
			return true
		}
		if hops >= v.maxDepth {
			v.log.WarnContext(ctx, "ancestor walk hit depth cap; assuming no cycle",
				"bean", start.ID, "depth", hops, "last", cur.ID)
			return false
		}
		next, err := lookup(ctx, cur.Parent)
		if err != nil {
			v.log.WarnContext(ctx, "ancestor lookup failed; assuming no cycle",
				"bean", start.ID, "ancestor", cur.Parent, "err", err)
			return false
		}
		cur = next
	}
	return false
}

func typeReason(child, parent bean.Type) string {
	allowed := bean.AllowedParents(child)
	list := "none"
	if len(allowed) > 0 {
		list = bean.JoinTypes(allowed)
	}
	return fmt.Sprintf("%s %s cannot have %s %s as parent. Allowed parent types: %s.",
		capitalize(article(string(child))), child, article(string(parent)), parent, list)
}

func article(word string) string {
	if word != "" && strings.ContainsRune("aeiou", rune(word[0])) {
		return "an"
	}
	return "a"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
