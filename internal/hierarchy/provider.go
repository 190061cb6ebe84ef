package hierarchy

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/selfagency/beans-vscode-sub002/internal/bean"
)

// Source supplies flat snapshots of beans.
type Source interface {
	List(ctx context.Context) ([]bean.Bean, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]bean.Bean, error)

func (f SourceFunc) List(ctx context.Context) ([]bean.Bean, error) { return f(ctx) }

// Provider keeps the most recently materialized Forest. Each Refresh
// rebuilds from scratch and replaces the previous Forest wholesale; when
// refreshes overlap, the last one to finish wins.
type Provider struct {
	source Source
	mode   atomic.Value // Mode
	cur    atomic.Pointer[Forest]
}

// NewProvider creates a Provider over source using the given view mode.
func NewProvider(source Source, mode Mode) *Provider {
	p := &Provider{source: source}
	p.mode.Store(mode)
	return p
}

// SetMode changes the view mode used by subsequent refreshes.
func (p *Provider) SetMode(mode Mode) { p.mode.Store(mode) }

// Mode returns the view mode used for refreshes.
func (p *Provider) Mode() Mode { return p.mode.Load().(Mode) }

// Refresh fetches a new snapshot and installs its Forest.
func (p *Provider) Refresh(ctx context.Context) (*Forest, error) {
	beans, err := p.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list beans: %w", err)
	}
	f := Materialize(beans, p.Mode())
	p.cur.Store(f)
	return f, nil
}

// Current returns the last installed Forest, or nil before the first Refresh.
func (p *Provider) Current() *Forest {
	return p.cur.Load()
}
