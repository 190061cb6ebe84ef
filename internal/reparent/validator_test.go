package reparent

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/selfagency/beans-vscode-sub002/internal/bean"
)

// mapLookup serves beans from a fixed map and counts calls.
type mapLookup struct {
	beans map[string]bean.Bean
	calls atomic.Int32
}

func newLookup(beans ...bean.Bean) *mapLookup {
	m := &mapLookup{beans: make(map[string]bean.Bean)}
	for _, b := range beans {
		m.beans[b.ID] = b
	}
	return m
}

func (m *mapLookup) get(_ context.Context, id string) (bean.Bean, error) {
	m.calls.Add(1)
	b, ok := m.beans[id]
	if !ok {
		return bean.Bean{}, fmt.Errorf("bean %s not found", id)
	}
	return b, nil
}

func quietValidator(buf *bytes.Buffer, opts ...Option) *Validator {
	logger := slog.New(slog.NewTextHandler(buf, nil))
	return New(append([]Option{WithLogger(logger)}, opts...)...)
}

func TestValidate_NilParentAlwaysValid(t *testing.T) {
	v := New()
	res := v.Validate(context.Background(), bean.Bean{ID: "m1", Type: bean.TypeMilestone}, nil, newLookup().get)
	if !res.Valid {
		t.Errorf("expected valid, got %+v", res)
	}
}

func TestValidate_SelfParent(t *testing.T) {
	v := New()
	b := bean.Bean{ID: "t1", Type: bean.TypeTask}
	res := v.Validate(context.Background(), b, &b, newLookup().get)
	if res.Valid || res.Kind != RejectSelf {
		t.Fatalf("expected self rejection, got %+v", res)
	}
	if res.Reason != "cannot make a bean its own parent." {
		t.Errorf("unexpected reason %q", res.Reason)
	}
}

func TestValidate_TypeMismatch(t *testing.T) {
	tests := []struct {
		child, parent bean.Type
		want          string
	}{
		{bean.TypeTask, bean.TypeTask, "A task cannot have a task as parent. Allowed parent types: milestone, epic, feature."},
		{bean.TypeEpic, bean.TypeFeature, "An epic cannot have a feature as parent. Allowed parent types: milestone."},
		{bean.TypeFeature, bean.TypeBug, "A feature cannot have a bug as parent. Allowed parent types: milestone, epic."},
		{bean.TypeMilestone, bean.TypeEpic, "A milestone cannot have an epic as parent. Allowed parent types: none."},
	}
	v := New()
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s under %s", tt.child, tt.parent), func(t *testing.T) {
			lookup := newLookup()
			res := v.Validate(context.Background(),
				bean.Bean{ID: "c", Type: tt.child},
				&bean.Bean{ID: "p", Type: tt.parent},
				lookup.get)
			if res.Valid || res.Kind != RejectType {
				t.Fatalf("expected type rejection, got %+v", res)
			}
			if res.Reason != tt.want {
				t.Errorf("reason = %q, want %q", res.Reason, tt.want)
			}
			if lookup.calls.Load() != 0 {
				t.Error("type rejection should not walk ancestors")
			}
		})
	}
}

func TestValidate_TaskUnderTaskScenario(t *testing.T) {
	res := New().Validate(context.Background(),
		bean.Bean{ID: "t1", Type: bean.TypeTask},
		&bean.Bean{ID: "t2", Type: bean.TypeTask},
		newLookup().get)
	if res.Valid {
		t.Fatal("expected rejection")
	}
	if !strings.Contains(res.Reason, "task cannot have a task as parent") {
		t.Errorf("unexpected reason %q", res.Reason)
	}
}

func TestValidate_DirectDescendantCycle(t *testing.T) {
	// Corrupt data: feature f1 already sits under task t1.
	f1 := bean.Bean{ID: "f1", Type: bean.TypeFeature, Parent: "t1"}
	t1 := bean.Bean{ID: "t1", Type: bean.TypeTask}
	lookup := newLookup(f1, t1)

	res := New().Validate(context.Background(), t1, &f1, lookup.get)
	if res.Valid || res.Kind != RejectCycle {
		t.Fatalf("expected cycle rejection, got %+v", res)
	}
	if !strings.Contains(res.Reason, "cycle") {
		t.Errorf("reason should mention cycle: %q", res.Reason)
	}
	if lookup.calls.Load() != 0 {
		t.Errorf("direct parent match should not need lookups, got %d", lookup.calls.Load())
	}
}

func TestValidate_TransitiveDescendantCycle(t *testing.T) {
	// Corrupt data: e2 -> e1 -> m1 -> f0. Moving f0 under e2 must be rejected.
	f0 := bean.Bean{ID: "f0", Type: bean.TypeFeature}
	m1 := bean.Bean{ID: "m1", Type: bean.TypeMilestone, Parent: "f0"}
	e1 := bean.Bean{ID: "e1", Type: bean.TypeEpic, Parent: "m1"}
	e2 := bean.Bean{ID: "e2", Type: bean.TypeEpic, Parent: "e1"}
	lookup := newLookup(f0, m1, e1, e2)

	res := New().Validate(context.Background(), f0, &e2, lookup.get)
	if res.Valid || res.Kind != RejectCycle {
		t.Fatalf("expected cycle rejection, got %+v", res)
	}
	if got := lookup.calls.Load(); got != 2 {
		t.Errorf("expected 2 lookups (e1, m1), got %d", got)
	}
}

func TestValidate_ValidMove(t *testing.T) {
	m1 := bean.Bean{ID: "m1", Type: bean.TypeMilestone}
	e1 := bean.Bean{ID: "e1", Type: bean.TypeEpic, Parent: "m1"}
	f1 := bean.Bean{ID: "f1", Type: bean.TypeFeature, Parent: "e1"}
	t1 := bean.Bean{ID: "t1", Type: bean.TypeTask}
	lookup := newLookup(m1, e1, f1)

	res := New().Validate(context.Background(), t1, &f1, lookup.get)
	if !res.Valid {
		t.Fatalf("expected valid, got %+v", res)
	}
	if got := lookup.calls.Load(); got != 2 {
		t.Errorf("expected walk through e1 and m1, got %d lookups", got)
	}
}

func TestValidate_LookupFailureFailsOpen(t *testing.T) {
	e1 := bean.Bean{ID: "e1", Type: bean.TypeEpic, Parent: "deleted"}
	t1 := bean.Bean{ID: "t1", Type: bean.TypeTask}

	var logs bytes.Buffer
	v := quietValidator(&logs)
	res := v.Validate(context.Background(), t1, &e1, newLookup().get)
	if !res.Valid {
		t.Fatalf("expected valid on lookup failure, got %+v", res)
	}
	if !strings.Contains(logs.String(), "ancestor lookup failed") {
		t.Errorf("expected warning to be logged, got %q", logs.String())
	}
}

func TestValidate_CorruptCycleRespectsDepthCap(t *testing.T) {
	// n0 -> n1 -> ... -> n9 -> n0, all milestones so a task may sit under n0.
	var beans []bean.Bean
	for i := 0; i < 10; i++ {
		beans = append(beans, bean.Bean{
			ID:     fmt.Sprintf("n%d", i),
			Type:   bean.TypeMilestone,
			Parent: fmt.Sprintf("n%d", (i+1)%10),
		})
	}
	lookup := newLookup(beans...)
	var logs bytes.Buffer
	v := quietValidator(&logs, WithMaxDepth(8))

	res := v.Validate(context.Background(), bean.Bean{ID: "t1", Type: bean.TypeTask}, &beans[0], lookup.get)
	if !res.Valid {
		t.Fatalf("expected valid when cap is reached, got %+v", res)
	}
	if got := lookup.calls.Load(); got != 8 {
		t.Errorf("expected exactly 8 lookups, got %d", got)
	}
	if !strings.Contains(logs.String(), "depth cap") {
		t.Errorf("expected depth cap warning, got %q", logs.String())
	}
}

func TestValidate_CycleFoundWithinCap(t *testing.T) {
	// Same ring, but the candidate is a member three hops up.
	var beans []bean.Bean
	for i := 0; i < 10; i++ {
		beans = append(beans, bean.Bean{
			ID:     fmt.Sprintf("n%d", i),
			Type:   bean.TypeMilestone,
			Parent: fmt.Sprintf("n%d", (i+1)%10),
		})
	}
	lookup := newLookup(beans...)
	// Pretend n3 is a task so the type check passes.
	candidate := bean.Bean{ID: "n3", Type: bean.TypeTask}
	res := New(WithMaxDepth(8)).Validate(context.Background(), candidate, &beans[0], lookup.get)
	if res.Valid || res.Kind != RejectCycle {
		t.Fatalf("expected cycle rejection, got %+v", res)
	}
}

func TestValidate_CancelledContextFailsOpen(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	lookup := func(ctx context.Context, id string) (bean.Bean, error) {
		return bean.Bean{}, ctx.Err()
	}
	e1 := bean.Bean{ID: "e1", Type: bean.TypeEpic, Parent: "m1"}
	var logs bytes.Buffer
	res := quietValidator(&logs).Validate(ctx, bean.Bean{ID: "t1", Type: bean.TypeTask}, &e1, lookup)
	if !res.Valid {
		t.Errorf("expected valid, got %+v", res)
	}
}

func TestNew_Options(t *testing.T) {
	if New().MaxDepth() != DefaultMaxDepth {
		t.Errorf("expected default depth %d", DefaultMaxDepth)
	}
	if New(WithMaxDepth(0)).MaxDepth() != DefaultMaxDepth {
		t.Error("non-positive depth should be ignored")
	}
	if New(WithMaxDepth(3)).MaxDepth() != 3 {
		t.Error("expected depth 3")
	}
}

func TestValidateAll_PreservesOrder(t *testing.T) {
	m1 := bean.Bean{ID: "m1", Type: bean.TypeMilestone}
	e1 := bean.Bean{ID: "e1", Type: bean.TypeEpic, Parent: "m1"}
	lookup := newLookup(m1, e1)

	moves := []Move{
		{Candidate: bean.Bean{ID: "t1", Type: bean.TypeTask}, Parent: &e1},
		{Candidate: bean.Bean{ID: "t2", Type: bean.TypeTask}, Parent: &bean.Bean{ID: "t3", Type: bean.TypeTask}},
		{Candidate: bean.Bean{ID: "e2", Type: bean.TypeEpic}, Parent: nil},
		{Candidate: m1, Parent: &m1},
	}

	results := New().ValidateAll(context.Background(), moves, lookup.get, 2)
	if len(results) != len(moves) {
		t.Fatalf("expected %d results, got %d", len(moves), len(results))
	}
	wantValid := []bool{true, false, true, false}
	wantKind := []RejectKind{RejectNone, RejectType, RejectNone, RejectSelf}
	for i, r := range results {
		if r.Valid != wantValid[i] || r.Kind != wantKind[i] {
			t.Errorf("move %d: got %+v, want valid=%v kind=%q", i, r, wantValid[i], wantKind[i])
		}
	}
}

func TestValidateAll_Empty(t *testing.T) {
	if got := New().ValidateAll(context.Background(), nil, newLookup().get, 0); len(got) != 0 {
		t.Errorf("expected no results, got %v", got)
	}
}
