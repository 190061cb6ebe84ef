package hierarchy

import (
	"slices"

	"github.com/selfagency/beans-vscode-sub002/internal/bean"
)

// Materialize builds a Forest from a flat snapshot in linear time.
//
// In nested mode a bean is a root when it has no parent, when its parent
// is missing from the snapshot (filtered views), or when it names itself.
// Beans that are only reachable through a parent cycle are promoted to
// roots as well, so every bean appears exactly once.
func Materialize(beans []bean.Bean, mode Mode) *Forest {
	if mode != ModeFlat {
		mode = ModeNested
	}

	f := &Forest{
		mode:     mode,
		beans:    slices.Clone(beans),
		byID:     make(map[string]int, len(beans)),
		children: make(map[string][]int),
		active:   make(map[string]struct{}),
	}

	// Index all beans. A duplicated id keeps its first occurrence.
	for i := range f.beans {
		if _, dup := f.byID[f.beans[i].ID]; !dup {
			f.byID[f.beans[i].ID] = i
		}
	}

	// Parent -> children edges, only for parents present in the snapshot.
	isChild := make([]bool, len(f.beans))
	for i := range f.beans {
		b := &f.beans[i]
		if !b.HasParent() || b.Parent == b.ID || f.byID[b.ID] != i {
			continue
		}
		if _, ok := f.byID[b.Parent]; !ok {
			continue
		}
		f.children[b.Parent] = append(f.children[b.Parent], i)
		isChild[i] = true
	}

	if mode == ModeFlat {
		f.roots = make([]int, 0, len(f.beans))
		for i := range f.beans {
			if f.byID[f.beans[i].ID] == i {
				f.roots = append(f.roots, i)
			}
		}
	} else {
		for i := range f.beans {
			if !isChild[i] && f.byID[f.beans[i].ID] == i {
				f.roots = append(f.roots, i)
			}
		}
		f.breakCycles(isChild)
	}

	f.markActive()
	return f
}

// breakCycles promotes one bean per parent cycle to a root. Beans that
// cannot be reached from any root hang below a cycle in corrupt data.
// Walking up from such a bean always ends on the cycle; the first bean
// seen twice is promoted and only its own parent edge is dropped, so
// well-formed children below the cycle keep their parents. Each bean is
// walked and visited at most once.
func (f *Forest) breakCycles(isChild []bool) {
	reached := make([]bool, len(f.beans))
	var queue []int
	visit := func(start int) {
		reached[start] = true
		queue = append(queue[:0], start)
		for len(queue) > 0 {
			n := queue[0]
			queue = queue[1:]
			for _, c := range f.children[f.beans[n].ID] {
				if !reached[c] {
					reached[c] = true
					queue = append(queue, c)
				}
			}
		}
	}

	for _, r := range f.roots {
		visit(r)
	}

	onPath := make([]bool, len(f.beans))
	for i := range f.beans {
		if reached[i] || !isChild[i] {
			continue
		}
		cur := i
		for !onPath[cur] {
			onPath[cur] = true
			cur = f.byID[f.beans[cur].Parent]
		}

		parent := f.beans[cur].Parent
		f.children[parent] = slices.DeleteFunc(f.children[parent], func(c int) bool { return c == cur })
		if len(f.children[parent]) == 0 {
			delete(f.children, parent)
		}
		f.roots = append(f.roots, cur)
		visit(cur)
	}
}

// markActive flags every ancestor of an in-progress bean. Marking is
// monotonic: a walk stops at the first ancestor that is already marked.
func (f *Forest) markActive() {
	for i := range f.beans {
		if f.beans[i].Status != bean.StatusInProgress {
			continue
		}
		cur := f.beans[i]
		for cur.HasParent() && cur.Parent != cur.ID {
			idx, ok := f.byID[cur.Parent]
			if !ok {
				break
			}
			if _, seen := f.active[cur.Parent]; seen {
				break
			}
			f.active[cur.Parent] = struct{}{}
			cur = f.beans[idx]
		}
	}
}

// Mode returns the view mode the forest was built with.
func (f *Forest) Mode() Mode { return f.mode }

// Len returns the number of distinct beans in the snapshot.
func (f *Forest) Len() int { return len(f.byID) }

// Roots returns the top-level beans in snapshot order.
func (f *Forest) Roots() []bean.Bean {
	return f.collect(f.roots)
}

// ChildrenOf returns the direct children of id in snapshot order.
func (f *Forest) ChildrenOf(id string) []bean.Bean {
	return f.collect(f.children[id])
}

// HasChildren reports whether id has at least one child in the snapshot.
func (f *Forest) HasChildren(id string) bool {
	return len(f.children[id]) > 0
}

// HasActiveDescendant reports whether some descendant of id is in progress.
func (f *Forest) HasActiveDescendant(id string) bool {
	_, ok := f.active[id]
	return ok
}

// Get returns the bean with the given id.
func (f *Forest) Get(id string) (bean.Bean, bool) {
	idx, ok := f.byID[id]
	if !ok {
		return bean.Bean{}, false
	}
	return f.beans[idx], true
}

// Beans returns every bean in snapshot order.
func (f *Forest) Beans() []bean.Bean {
	out := make([]bean.Bean, 0, len(f.byID))
	for i := range f.beans {
		if f.byID[f.beans[i].ID] == i {
			out = append(out, f.beans[i])
		}
	}
	return out
}

func (f *Forest) collect(idxs []int) []bean.Bean {
	if len(idxs) == 0 {
		return nil
	}
	out := make([]bean.Bean, len(idxs))
	for i, idx := range idxs {
		out[i] = f.beans[idx]
	}
	return out
}
