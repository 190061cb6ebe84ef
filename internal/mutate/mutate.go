// Package mutate runs validated reparent requests against the beans CLI.
package mutate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/selfagency/beans-vscode-sub002/internal/bean"
	"github.com/selfagency/beans-vscode-sub002/internal/reparent"
)

// Store is the subset of the beans client a Mover needs.
type Store interface {
	Show(ctx context.Context, id string) (bean.Bean, error)
	SetParent(ctx context.Context, id, parent, etag string) error
}

// RejectedError reports a move refused by the validator. Its message is the
// validator's reason, verbatim.
type RejectedError struct {
	Result reparent.Result
}

func (e *RejectedError) Error() string { return e.Result.Reason }

// Mover validates and applies reparent requests.
type Mover struct {
	store     Store
	validator *reparent.Validator
	log       *slog.Logger
}

// NewMover creates a Mover. A nil validator uses reparent defaults.
func NewMover(store Store, v *reparent.Validator, log *slog.Logger) *Mover {
	if v == nil {
		v = reparent.New()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Mover{store: store, validator: v, log: log}
}

// Check validates moving id under parentID without applying it. An empty
// parentID means moving to the top level.
func (m *Mover) Check(ctx context.Context, id, parentID string) (bean.Bean, reparent.Result, error) {
	candidate, err := m.store.Show(ctx, id)
	if err != nil {
		return bean.Bean{}, reparent.Result{}, fmt.Errorf("load %s: %w", id, err)
	}
	var proposed *bean.Bean
	if parentID != "" {
		p, err := m.store.Show(ctx, parentID)
		if err != nil {
			return bean.Bean{}, reparent.Result{}, fmt.Errorf("load parent %s: %w", parentID, err)
		}
		proposed = &p
	}
	return candidate, m.validator.Validate(ctx, candidate, proposed, m.store.Show), nil
}

// Move validates and, if accepted, applies the new parent using the
// candidate's etag. A refused move returns *RejectedError.
func (m *Mover) Move(ctx context.Context, id, parentID string) error {
	candidate, res, err := m.Check(ctx, id, parentID)
	if err != nil {
		return err
	}
	if !res.Valid {
		return &RejectedError{Result: res}
	}
	if candidate.Parent == parentID {
		m.log.DebugContext(ctx, "parent unchanged; skipping update", "bean", id)
		return nil
	}
	if err := m.store.SetParent(ctx, id, parentID, candidate.ETag); err != nil {
		return fmt.Errorf("set parent of %s: %w", id, err)
	}
	m.log.InfoContext(ctx, "bean reparented", "bean", id, "parent", parentID)
	return nil
}
