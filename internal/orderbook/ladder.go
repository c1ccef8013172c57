package orderbook

import (
	"sort"

	"github.com/google/btree"

	"github.com/alanyoungcy/predexchange/internal/domain"
)

// ladder stores one side of a book keyed by integer micro-price. Iteration
// order is price priority: descending for bids, ascending for asks.
type ladder interface {
	get(k int64) (float64, bool)
	set(k int64, size float64)
	remove(k int64)
	reset()
	best() (int64, bool)
	// top returns the first n levels in priority order; n < 0 returns all.
	top(n int) []domain.PriceLevel
	len() int
}

// mapLadder is a hash map sorted on read.
type mapLadder struct {
	levels map[int64]float64
	desc   bool
}

func newMapLadder(desc bool) *mapLadder {
	return &mapLadder{levels: make(map[int64]float64), desc: desc}
}

func (l *mapLadder) get(k int64) (float64, bool) {
	s, ok := l.levels[k]
	return s, ok
}

func (l *mapLadder) set(k int64, size float64) { l.levels[k] = size }
func (l *mapLadder) remove(k int64)            { delete(l.levels, k) }
func (l *mapLadder) reset()                    { clear(l.levels) }
func (l *mapLadder) len() int                  { return len(l.levels) }

func (l *mapLadder) best() (int64, bool) {
	var (
		out   int64
		found bool
	)
	for k := range l.levels {
		if !found || (l.desc && k > out) || (!l.desc && k < out) {
			out, found = k, true
		}
	}
	return out, found
}

func (l *mapLadder) top(n int) []domain.PriceLevel {
	if n == 0 || len(l.levels) == 0 {
		return []domain.PriceLevel{}
	}
	keys := make([]int64, 0, len(l.levels))
	for k := range l.levels {
		keys = append(keys, k)
	}
	if l.desc {
		sort.Slice(keys, func(i, j int) bool { return keys[i] > keys[j] })
	} else {
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	}
	if n > 0 && n < len(keys) {
		keys = keys[:n]
	}
	out := make([]domain.PriceLevel, len(keys))
	for i, k := range keys {
		out[i] = domain.PriceLevel{Price: keyPrice(k), Size: l.levels[k]}
	}
	return out
}

type treeLevel struct {
	key  int64
	size float64
}

// treeLadder keeps levels ordered in a B-tree so best and top-n reads do
// not sort.
type treeLadder struct {
	tree *btree.BTreeG[treeLevel]
}

func newTreeLadder(desc bool) *treeLadder {
	less := func(a, b treeLevel) bool { return a.key < b.key }
	if desc {
		less = func(a, b treeLevel) bool { return a.key > b.key }
	}
	return &treeLadder{tree: btree.NewG(32, less)}
}

func (l *treeLadder) get(k int64) (float64, bool) {
	it, ok := l.tree.Get(treeLevel{key: k})
	return it.size, ok
}

func (l *treeLadder) set(k int64, size float64) {
	l.tree.ReplaceOrInsert(treeLevel{key: k, size: size})
}
func (l *treeLadder) remove(k int64) { l.tree.Delete(treeLevel{key: k}) }
func (l *treeLadder) reset()         { l.tree.Clear(false) }
func (l *treeLadder) len() int       { return l.tree.Len() }

func (l *treeLadder) best() (int64, bool) {
	it, ok := l.tree.Min()
	return it.key, ok
}

func (l *treeLadder) top(n int) []domain.PriceLevel {
	if n == 0 || l.tree.Len() == 0 {
		return []domain.PriceLevel{}
	}
	capacity := l.tree.Len()
	if n > 0 && n < capacity {
		capacity = n
	}
	out := make([]domain.PriceLevel, 0, capacity)
	l.tree.Ascend(func(it treeLevel) bool {
		out = append(out, domain.PriceLevel{Price: keyPrice(it.key), Size: it.size})
		return n < 0 || len(out) < n
	})
	return out
}
