package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/selfagency/beans-vscode-sub002/internal/bean"
)

func ids(beans []bean.Bean) []string {
	out := make([]string, len(beans))
	for i, b := range beans {
		out[i] = b.ID
	}
	return out
}

func TestMaterialize_NestedChain(t *testing.T) {
	// m1 <- e1 <- f1
	raw := []bean.Bean{
		{ID: "m1", Type: bean.TypeMilestone},
		{ID: "e1", Type: bean.TypeEpic, Parent: "m1"},
		{ID: "f1", Type: bean.TypeFeature, Parent: "e1"},
	}

	f := Materialize(raw, ModeNested)

	if got := ids(f.Roots()); !reflect.DeepEqual(got, []string{"m1"}) {
		t.Errorf("expected roots=[m1], got %v", got)
	}
	if got := ids(f.ChildrenOf("m1")); !reflect.DeepEqual(got, []string{"e1"}) {
		t.Errorf("expected children(m1)=[e1], got %v", got)
	}
	if got := ids(f.ChildrenOf("e1")); !reflect.DeepEqual(got, []string{"f1"}) {
		t.Errorf("expected children(e1)=[f1], got %v", got)
	}
	if got := f.ChildrenOf("f1"); len(got) != 0 {
		t.Errorf("expected no children for f1, got %v", ids(got))
	}
	if f.Len() != 3 {
		t.Errorf("expected 3 beans, got %d", f.Len())
	}
}

func TestMaterialize_MissingParentPromoted(t *testing.T) {
	// e1's parent was filtered out upstream.
	raw := []bean.Bean{
		{ID: "e1", Type: bean.TypeEpic, Parent: "m-gone"},
		{ID: "t1", Type: bean.TypeTask, Parent: "e1"},
		{ID: "t2", Type: bean.TypeTask},
	}

	f := Materialize(raw, ModeNested)

	if got := ids(f.Roots()); !reflect.DeepEqual(got, []string{"e1", "t2"}) {
		t.Errorf("expected roots=[e1 t2], got %v", got)
	}
	if got := ids(f.ChildrenOf("e1")); !reflect.DeepEqual(got, []string{"t1"}) {
		t.Errorf("expected children(e1)=[t1], got %v", got)
	}
}

func TestMaterialize_FlatMode(t *testing.T) {
	raw := []bean.Bean{
		{ID: "m1", Type: bean.TypeMilestone},
		{ID: "e1", Type: bean.TypeEpic, Parent: "m1"},
		{ID: "t1", Type: bean.TypeTask, Parent: "e1"},
	}

	f := Materialize(raw, ModeFlat)

	if got := ids(f.Roots()); !reflect.DeepEqual(got, []string{"m1", "e1", "t1"}) {
		t.Errorf("expected every bean as root, got %v", got)
	}
	// Explicit expansion still works.
	if got := ids(f.ChildrenOf("m1")); !reflect.DeepEqual(got, []string{"e1"}) {
		t.Errorf("expected children(m1)=[e1], got %v", got)
	}
	if f.Mode() != ModeFlat {
		t.Errorf("expected flat mode, got %s", f.Mode())
	}
}

func TestMaterialize_SelfParentIsRoot(t *testing.T) {
	raw := []bean.Bean{{ID: "a", Parent: "a"}}
	f := Materialize(raw, ModeNested)
	if got := ids(f.Roots()); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("expected roots=[a], got %v", got)
	}
	if len(f.ChildrenOf("a")) != 0 {
		t.Error("self-parented bean should not be its own child")
	}
}

func TestMaterialize_ParentCycleBroken(t *testing.T) {
	// a -> b -> c -> a, plus d hanging below c.
	raw := []bean.Bean{
		{ID: "a", Parent: "c"},
		{ID: "b", Parent: "a"},
		{ID: "c", Parent: "b"},
		{ID: "d", Parent: "c"},
	}

	f := Materialize(raw, ModeNested)

	if got := ids(f.Roots()); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("expected cycle broken at a, roots=%v", got)
	}

	// Every bean reachable exactly once.
	seen := map[string]int{}
	var walk func(id string)
	walk = func(id string) {
		seen[id]++
		if seen[id] > 1 {
			t.Fatalf("bean %s reached twice", id)
		}
		for _, c := range f.ChildrenOf(id) {
			walk(c.ID)
		}
	}
	for _, r := range f.Roots() {
		walk(r.ID)
	}
	if len(seen) != 4 {
		t.Errorf("expected 4 reachable beans, got %v", seen)
	}
}

// wideCycle returns n children of a followed by the 2-cycle a <-> b.
func wideCycle(n int) []bean.Bean {
	raw := make([]bean.Bean, 0, n+2)
	for i := 0; i < n; i++ {
		raw = append(raw, bean.Bean{ID: fmt.Sprintf("c%d", i), Parent: "a"})
	}
	return append(raw, bean.Bean{ID: "a", Parent: "b"}, bean.Bean{ID: "b", Parent: "a"})
}

func TestMaterialize_CycleKeepsChildrenUnderParent(t *testing.T) {
	f := Materialize(wideCycle(50), ModeNested)

	if got := ids(f.Roots()); !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("expected only a promoted, roots=%v", got)
	}
	kids := f.ChildrenOf("a")
	if len(kids) != 51 {
		t.Fatalf("expected 50 children plus b under a, got %d", len(kids))
	}
	if kids[0].ID != "c0" || kids[50].ID != "b" {
		t.Errorf("children out of snapshot order: first=%s last=%s", kids[0].ID, kids[50].ID)
	}
	if f.HasChildren("b") {
		t.Errorf("edge b -> a should be dropped, got %v", ids(f.ChildrenOf("b")))
	}
}

func TestMaterialize_CycleLinear(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	measure := func(raw []bean.Bean) time.Duration {
		best := time.Duration(1<<63 - 1)
		for i := 0; i < 3; i++ {
			start := time.Now()
			Materialize(raw, ModeNested)
			if d := time.Since(start); d < best {
				best = d
			}
		}
		return best
	}

	small := measure(wideCycle(5000))
	large := measure(wideCycle(40000))

	if small > 0 && large > small*30 {
		t.Errorf("cycle breaking scaled super-linearly: %v for 5000, %v for 40000", small, large)
	}
}

func TestMaterialize_DuplicateIDsKeepFirst(t *testing.T) {
	raw := []bean.Bean{
		{ID: "a", Title: "first"},
		{ID: "a", Title: "second"},
	}
	f := Materialize(raw, ModeNested)
	if f.Len() != 1 {
		t.Fatalf("expected 1 bean, got %d", f.Len())
	}
	if b, _ := f.Get("a"); b.Title != "first" {
		t.Errorf("expected first occurrence, got %q", b.Title)
	}
	if len(f.Roots()) != 1 {
		t.Errorf("expected one root, got %v", ids(f.Roots()))
	}
}

func TestMaterialize_ActiveDescendant(t *testing.T) {
	//      m1
	//     /  \
	//    e1   e2
	//    |     |
	//    t1*   t2
	raw := []bean.Bean{
		{ID: "m1", Type: bean.TypeMilestone, Status: bean.StatusTodo},
		{ID: "e1", Type: bean.TypeEpic, Status: bean.StatusTodo, Parent: "m1"},
		{ID: "e2", Type: bean.TypeEpic, Status: bean.StatusTodo, Parent: "m1"},
		{ID: "t1", Type: bean.TypeTask, Status: bean.StatusInProgress, Parent: "e1"},
		{ID: "t2", Type: bean.TypeTask, Status: bean.StatusTodo, Parent: "e2"},
	}

	f := Materialize(raw, ModeNested)

	for _, id := range []string{"m1", "e1"} {
		if !f.HasActiveDescendant(id) {
			t.Errorf("expected %s to have an active descendant", id)
		}
	}
	for _, id := range []string{"e2", "t1", "t2"} {
		if f.HasActiveDescendant(id) {
			t.Errorf("expected %s to have no active descendant", id)
		}
	}
}

func TestMaterialize_ActiveDescendantInFilteredView(t *testing.T) {
	// Ancestor outside the snapshot: walk stops without error.
	raw := []bean.Bean{
		{ID: "e1", Parent: "gone"},
		{ID: "t1", Status: bean.StatusInProgress, Parent: "e1"},
	}
	f := Materialize(raw, ModeNested)
	if !f.HasActiveDescendant("e1") {
		t.Error("expected e1 marked")
	}
	if f.HasActiveDescendant("gone") {
		t.Error("absent bean should not be marked")
	}
}

func TestMaterialize_Idempotent(t *testing.T) {
	raw := []bean.Bean{
		{ID: "m1", Type: bean.TypeMilestone},
		{ID: "e1", Type: bean.TypeEpic, Parent: "m1", Status: bean.StatusInProgress},
		{ID: "x", Parent: "missing"},
	}
	a := Materialize(raw, ModeNested)
	b := Materialize(raw, ModeNested)

	if !reflect.DeepEqual(a.Roots(), b.Roots()) {
		t.Error("roots differ between identical materializations")
	}
	for _, id := range []string{"m1", "e1", "x"} {
		if !reflect.DeepEqual(a.ChildrenOf(id), b.ChildrenOf(id)) {
			t.Errorf("children of %s differ", id)
		}
		if a.HasActiveDescendant(id) != b.HasActiveDescendant(id) {
			t.Errorf("active marker of %s differs", id)
		}
	}
}

func TestMaterialize_SnapshotIsolated(t *testing.T) {
	raw := []bean.Bean{{ID: "a", Title: "before"}}
	f := Materialize(raw, ModeNested)
	raw[0].Title = "after"
	if b, _ := f.Get("a"); b.Title != "before" {
		t.Errorf("forest observed caller mutation: %q", b.Title)
	}

	roots := f.Roots()
	roots[0].Title = "mutated"
	if b, _ := f.Get("a"); b.Title != "before" {
		t.Error("mutating Roots() result changed the forest")
	}
}

func TestMaterialize_Empty(t *testing.T) {
	f := Materialize(nil, ModeNested)
	if f.Len() != 0 || len(f.Roots()) != 0 {
		t.Errorf("expected empty forest, got %d beans", f.Len())
	}
}

func chain(n int) []bean.Bean {
	raw := make([]bean.Bean, n)
	for i := 0; i < n; i++ {
		raw[i] = bean.Bean{ID: fmt.Sprintf("n%d", i), Status: bean.StatusInProgress}
		if i > 0 {
			raw[i].Parent = fmt.Sprintf("n%d", i-1)
		}
	}
	return raw
}

func TestMaterialize_LinearInDepth(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	measure := func(raw []bean.Bean) time.Duration {
		best := time.Duration(1<<63 - 1)
		for i := 0; i < 3; i++ {
			start := time.Now()
			Materialize(raw, ModeNested)
			if d := time.Since(start); d < best {
				best = d
			}
		}
		return best
	}

	small := measure(chain(2000))
	large := measure(chain(16000))

	// 8x the input: linear is ~8x, quadratic would be ~64x.
	if small > 0 && large > small*30 {
		t.Errorf("materialize scaled super-linearly: %v for 2000, %v for 16000", small, large)
	}
}

func BenchmarkMaterialize_DeepChain(b *testing.B) {
	raw := chain(10000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Materialize(raw, ModeNested)
	}
}

func TestProvider_RefreshReplacesSnapshot(t *testing.T) {
	snapshots := [][]bean.Bean{
		{{ID: "a"}},
		{{ID: "a"}, {ID: "b", Parent: "a"}},
	}
	call := 0
	p := NewProvider(SourceFunc(func(context.Context) ([]bean.Bean, error) {
		s := snapshots[call]
		call++
		return s, nil
	}), ModeNested)

	if p.Current() != nil {
		t.Fatal("expected nil forest before first refresh")
	}

	first, err := p.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	second, err := p.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if p.Current() != second {
		t.Error("expected latest forest to be current")
	}
	if first.Len() != 1 || second.Len() != 2 {
		t.Errorf("unexpected sizes: %d, %d", first.Len(), second.Len())
	}
}

func TestProvider_RefreshErrorKeepsPrevious(t *testing.T) {
	fail := false
	p := NewProvider(SourceFunc(func(context.Context) ([]bean.Bean, error) {
		if fail {
			return nil, errors.New("beans exited 1")
		}
		return []bean.Bean{{ID: "a"}}, nil
	}), ModeNested)

	prev, err := p.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	fail = true
	if _, err := p.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if p.Current() != prev {
		t.Error("failed refresh should not replace the current forest")
	}
}

func TestProvider_SetMode(t *testing.T) {
	p := NewProvider(SourceFunc(func(context.Context) ([]bean.Bean, error) {
		return []bean.Bean{{ID: "a"}, {ID: "b", Parent: "a"}}, nil
	}), ModeNested)
	p.SetMode(ModeFlat)
	f, err := p.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(f.Roots()) != 2 {
		t.Errorf("expected flat roots, got %v", ids(f.Roots()))
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("FLAT"); err != nil || m != ModeFlat {
		t.Errorf("ParseMode(FLAT) = %q, %v", m, err)
	}
	if m, err := ParseMode(""); err != nil || m != ModeNested {
		t.Errorf("ParseMode(\"\") = %q, %v", m, err)
	}
	if _, err := ParseMode("tree"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
