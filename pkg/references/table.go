// Package references implements the liveness engine of the tree shaker: a
// shared table of fully-qualified-name reference counts and the counter
// that grows it, one module visit at a time, until a fixed point.
package references

import (
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
)

// Lookup is the read side of a reference table.
type Lookup interface {
	// Positive reports whether fqn has been referenced by live code.
	Positive(fqn string) bool
	// Referenced reports whether fqn, or any name below it, is positive.
	Referenced(fqn string) bool
}

// Table holds reference counts for every fully-qualified name seen so far.
// A zero count means the name is known but not proven live; an absent name
// is treated the same for liveness queries. Increases propagate along the
// import alias chain.
type Table struct {
	mu      sync.RWMutex
	counts  map[string]int
	aliases map[string]string
}

// NewTable creates an empty table. aliases maps a name to an equivalent
// name whose count must follow it.
func NewTable(aliases map[string]string) *Table {
	return &Table{
		counts:  make(map[string]int),
		aliases: maps.Clone(aliases),
	}
}

// Aliases returns the import alias table.
func (t *Table) Aliases() map[string]string { return t.aliases }

// Increase references fqn and everything it aliases. It returns how many
// names went from unreferenced to referenced.
func (t *Table) Increase(fqn string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	newRefs := 0
	for _, f := range aliasChain(t.aliases, fqn) {
		if t.counts[f] == 0 {
			newRefs++
		}
		t.counts[f]++
	}
	return newRefs
}

// MakeKnown records fqn with a zero count if it is absent.
func (t *Table) MakeKnown(fqn string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.counts[fqn]; !ok {
		t.counts[fqn] = 0
	}
}

// Count returns the reference count of fqn.
func (t *Table) Count(fqn string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.counts[fqn]
}

// Known reports whether fqn has been recorded, with any count.
func (t *Table) Known(fqn string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.counts[fqn]
	return ok
}

// Positive implements Lookup.
func (t *Table) Positive(fqn string) bool { return t.Count(fqn) > 0 }

// Referenced implements Lookup. It scans the table; use a Snapshot for
// repeated queries.
func (t *Table) Referenced(fqn string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.counts[fqn] > 0 {
		return true
	}
	prefix := fqn + "."
	for k, n := range t.counts {
		if n > 0 && strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

// Len returns the number of known names.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.counts)
}

// PositiveCount returns the number of referenced names.
func (t *Table) PositiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, c := range t.counts {
		if c > 0 {
			n++
		}
	}
	return n
}

// Counts returns a copy of the counts.
func (t *Table) Counts() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return maps.Clone(t.counts)
}

// Load replaces the counts, for instance with a cached converged table.
func (t *Table) Load(counts map[string]int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts = maps.Clone(counts)
	if t.counts == nil {
		t.counts = make(map[string]int)
	}
}

// Snapshot returns an immutable copy of the table for lock-free reads.
func (t *Table) Snapshot() *Snapshot {
	t.mu.RLock()
	counts := maps.Clone(t.counts)
	t.mu.RUnlock()
	return newSnapshot(counts)
}

// Merge applies the increments collected by a module visit and returns how
// many names went from unreferenced to referenced.
func (t *Table) Merge(d *Delta) int {
	if d == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for k := range d.known {
		if _, ok := t.counts[k]; !ok {
			t.counts[k] = 0
		}
	}
	newRefs := 0
	for k, n := range d.counts {
		if n <= 0 {
			continue
		}
		if t.counts[k] == 0 {
			newRefs++
		}
		t.counts[k] += n
	}
	return newRefs
}

// aliasChain returns fqn followed by every name it transitively aliases,
// stopping at the first repetition.
func aliasChain(aliases map[string]string, fqn string) []string {
	chain := []string{fqn}
	for {
		next, ok := aliases[fqn]
		if !ok || slices.Contains(chain, next) {
			return chain
		}
		chain = append(chain, next)
		fqn = next
	}
}

// Snapshot is a read-only view of a Table at one point in time.
type Snapshot struct {
	counts     map[string]int
	referenced map[string]struct{}
	positive   []string
}

func newSnapshot(counts map[string]int) *Snapshot {
	s := &Snapshot{
		counts:     counts,
		referenced: make(map[string]struct{}),
	}
	for k, n := range counts {
		if n > 0 {
			s.positive = append(s.positive, k)
			addPrefixes(s.referenced, k)
		}
	}
	slices.Sort(s.positive)
	return s
}

// addPrefixes adds fqn and each of its dotted prefixes to set.
func addPrefixes(set map[string]struct{}, fqn string) {
	for {
		if _, ok := set[fqn]; ok {
			return
		}
		set[fqn] = struct{}{}
		i := strings.LastIndexByte(fqn, '.')
		if i < 0 {
			return
		}
		fqn = fqn[:i]
	}
}

// Count returns the reference count of fqn.
func (s *Snapshot) Count(fqn string) int { return s.counts[fqn] }

// Known reports whether fqn is recorded.
func (s *Snapshot) Known(fqn string) bool {
	_, ok := s.counts[fqn]
	return ok
}

// Positive implements Lookup.
func (s *Snapshot) Positive(fqn string) bool { return s.counts[fqn] > 0 }

// Referenced implements Lookup.
func (s *Snapshot) Referenced(fqn string) bool {
	_, ok := s.referenced[fqn]
	return ok
}

// PositiveWithPrefix returns the referenced names starting with prefix, in
// sorted order.
func (s *Snapshot) PositiveWithPrefix(prefix string) []string {
	i := sort.SearchStrings(s.positive, prefix)
	var out []string
	for ; i < len(s.positive) && strings.HasPrefix(s.positive[i], prefix); i++ {
		out = append(out, s.positive[i])
	}
	return out
}

// WithKnownModules returns a snapshot in which every module of mods that
// has a referenced member counts as referenced itself.
func (s *Snapshot) WithKnownModules(mods []string) *Snapshot {
	var promote []string
	for _, m := range mods {
		if !s.Positive(m) && s.Referenced(m) {
			promote = append(promote, m)
		}
	}
	if len(promote) == 0 {
		return s
	}
	counts := maps.Clone(s.counts)
	for _, m := range promote {
		counts[m] = 1
	}
	return newSnapshot(counts)
}

// Delta holds the increments of one module visit.
type Delta struct {
	counts map[string]int
	known  map[string]struct{}
}

func newDelta() *Delta {
	return &Delta{
		counts: make(map[string]int),
		known:  make(map[string]struct{}),
	}
}

// Len returns the number of names the delta touches.
func (d *Delta) Len() int { return len(d.counts) + len(d.known) }

// view layers a visit's own increments over a snapshot so that a module
// sees its earlier references without touching the shared table.
type view struct {
	snap       *Snapshot
	aliases    map[string]string
	delta      *Delta
	referenced map[string]struct{}
}

func newView(snap *Snapshot, aliases map[string]string) *view {
	return &view{
		snap:       snap,
		aliases:    aliases,
		delta:      newDelta(),
		referenced: make(map[string]struct{}),
	}
}

func (v *view) Positive(fqn string) bool {
	return v.snap.counts[fqn]+v.delta.counts[fqn] > 0
}

func (v *view) Referenced(fqn string) bool {
	if v.snap.Referenced(fqn) {
		return true
	}
	_, ok := v.referenced[fqn]
	return ok
}

func (v *view) increase(fqn string) {
	for _, f := range aliasChain(v.aliases, fqn) {
		if !v.Positive(f) {
			addPrefixes(v.referenced, f)
		}
		v.delta.counts[f]++
	}
}

func (v *view) makeKnown(fqn string) {
	if !v.snap.Known(fqn) {
		v.delta.known[fqn] = struct{}{}
	}
}

func (v *view) positiveWithPrefix(prefix string) []string {
	out := v.snap.PositiveWithPrefix(prefix)
	for k, n := range v.delta.counts {
		if n > 0 && strings.HasPrefix(k, prefix) && !v.snap.Positive(k) {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

func anyPositive(l Lookup, fqns []string) bool {
	for _, f := range fqns {
		if l.Positive(f) {
			return true
		}
	}
	return false
}
