package tree

import (
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/pbnjay/memory"
	"github.com/rs/zerolog/log"
)

// ErrTableFull is returned when a node must be created but the table is at
// capacity and every entry is pinned by the current root.
var ErrTableFull = errors.New("transposition table is full")

const (
	numShards = 64
	// rough bytes per node including its state, edges and pending children
	nodeSizeEstimate = 2048
	// a reclaim frees at least this fraction of the capacity
	reclaimDivisor = 16
)

type shard struct {
	sync.RWMutex
	m map[uint64]*Node
}

type TableStats struct {
	Size       int    `json:"size"`
	Capacity   int    `json:"capacity"`
	Created    uint64 `json:"created"`
	Lookups    uint64 `json:"lookups"`
	Hits       uint64 `json:"hits"`
	Collisions uint64 `json:"collisions"`
	Evictions  uint64 `json:"evictions"`
}

// Table maps canonical state keys to nodes. Lookups and inserts lock one
// shard; reclaiming space locks each shard in turn.
type Table struct {
	shards     [numShards]shard
	size       atomic.Int64
	maxEntries int64
	epoch      atomic.Uint32
	tick       atomic.Uint64

	created    atomic.Uint64
	lookups    atomic.Uint64
	hits       atomic.Uint64
	collisions atomic.Uint64
	evictions  atomic.Uint64

	reclaimMu sync.Mutex
}

// EntriesForMemory returns how many nodes fit in the given fraction of the
// machine's memory.
func EntriesForMemory(fractionOfMemory float64) int {
	totalMem := memory.TotalMemory()
	n := int(fractionOfMemory * float64(totalMem) / nodeSizeEstimate)
	log.Info().Uint64("total-memory", totalMem).Int("entries", n).Msg("transposition-table-size")
	return max(n, 1024)
}

func NewTable(maxEntries int) *Table {
	t := &Table{maxEntries: int64(max(maxEntries, 1))}
	for i := range t.shards {
		t.shards[i].m = make(map[uint64]*Node)
	}
	t.epoch.Store(1)
	return t
}

func (t *Table) shardFor(key uint64) *shard {
	return &t.shards[key&(numShards-1)]
}

func (t *Table) Len() int {
	return int(t.size.Load())
}

func (t *Table) Capacity() int {
	return int(t.maxEntries)
}

func (t *Table) Stats() TableStats {
	return TableStats{
		Size:       t.Len(),
		Capacity:   t.Capacity(),
		Created:    t.created.Load(),
		Lookups:    t.lookups.Load(),
		Hits:       t.hits.Load(),
		Collisions: t.collisions.Load(),
		Evictions:  t.evictions.Load(),
	}
}

// Tick advances the clock used to find least recently visited entries.
func (t *Table) Tick() {
	t.tick.Add(1)
}

// Touch marks a node as visited now.
func (t *Table) Touch(n *Node) {
	n.lastVisit.Store(t.tick.Load())
}

func (t *Table) Get(key uint64) *Node {
	t.lookups.Add(1)
	sh := t.shardFor(key)
	sh.RLock()
	n := sh.m[key]
	sh.RUnlock()
	if n == nil {
		return nil
	}
	t.hits.Add(1)
	t.revive(n)
	return n
}

// GetOrInsert returns the node for key, calling build to create it if it
// is absent. When several goroutines race on the same key exactly one node
// is stored and all of them get it back; build may run more than once.
func (t *Table) GetOrInsert(key, check uint64, build func() *Node) (*Node, bool, error) {
	t.lookups.Add(1)
	sh := t.shardFor(key)
	sh.RLock()
	n := sh.m[key]
	sh.RUnlock()
	if n != nil {
		t.hit(n, check)
		return n, false, nil
	}
	// reserve a slot first so concurrent inserts cannot overshoot
	for t.size.Add(1) > t.maxEntries {
		t.size.Add(-1)
		if !t.reclaim() {
			return nil, false, ErrTableFull
		}
	}
	nn := build()
	nn.epoch.Store(t.epoch.Load())
	nn.lastVisit.Store(t.tick.Load())

	sh.Lock()
	if n = sh.m[key]; n != nil {
		sh.Unlock()
		t.size.Add(-1)
		t.hit(n, check)
		return n, false, nil
	}
	sh.m[key] = nn
	sh.Unlock()
	t.created.Add(1)
	return nn, true, nil
}

func (t *Table) hit(n *Node, check uint64) {
	t.hits.Add(1)
	if n.check != check {
		// two positions share a zobrist key; the stored one wins
		c := t.collisions.Add(1)
		if c&(c-1) == 0 {
			log.Debug().Uint64("key", n.key).Uint64("collisions", c).Msg("zobrist-collision")
		}
	}
	t.revive(n)
}

// revive pins a node left over from an earlier root, along with whatever is
// still stored below it, once it becomes reachable again.
func (t *Table) revive(n *Node) {
	cur := t.epoch.Load()
	if n.epoch.Load() == cur {
		return
	}
	t.mark(n, cur)
}

func (t *Table) mark(n *Node, epoch uint32) int {
	count := 0
	stack := []*Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur.epoch.Swap(epoch) == epoch {
			continue
		}
		count++
		for _, e := range cur.Edges() {
			sh := t.shardFor(e.Child)
			sh.RLock()
			c := sh.m[e.Child]
			sh.RUnlock()
			if c != nil && c.epoch.Load() != epoch {
				stack = append(stack, c)
			}
		}
	}
	return count
}

// Pin starts a new epoch in which exactly the nodes reachable from root
// are protected from eviction. It returns the number of pinned nodes.
func (t *Table) Pin(root *Node) int {
	epoch := t.epoch.Add(1)
	return t.mark(root, epoch)
}

func (t *Table) pinned(n *Node) bool {
	return n.epoch.Load() == t.epoch.Load()
}

// Prune deletes every node that is not pinned and returns how many were
// removed.
func (t *Table) Prune() int {
	removed := 0
	for i := range t.shards {
		sh := &t.shards[i]
		sh.Lock()
		for k, n := range sh.m {
			if !t.pinned(n) {
				delete(sh.m, k)
				removed++
			}
		}
		sh.Unlock()
	}
	t.size.Add(-int64(removed))
	return removed
}

// reclaim evicts the least recently visited unpinned nodes. It reports
// whether there is room for a new node afterwards.
func (t *Table) reclaim() bool {
	t.reclaimMu.Lock()
	defer t.reclaimMu.Unlock()
	if t.size.Load() < t.maxEntries {
		return true
	}
	type victim struct {
		key  uint64
		last uint64
	}
	var victims []victim
	for i := range t.shards {
		sh := &t.shards[i]
		sh.RLock()
		for k, n := range sh.m {
			if !t.pinned(n) {
				victims = append(victims, victim{k, n.lastVisit.Load()})
			}
		}
		sh.RUnlock()
	}
	if len(victims) == 0 {
		return false
	}
	slices.SortFunc(victims, func(a, b victim) int {
		switch {
		case a.last < b.last:
			return -1
		case a.last > b.last:
			return 1
		}
		return 0
	})
	target := min(len(victims), int(t.maxEntries/reclaimDivisor)+1)
	evicted := 0
	for _, v := range victims[:target] {
		sh := t.shardFor(v.key)
		sh.Lock()
		// it may have been revived since it was collected
		if n, ok := sh.m[v.key]; ok && !t.pinned(n) {
			delete(sh.m, v.key)
			evicted++
		}
		sh.Unlock()
	}
	t.size.Add(-int64(evicted))
	t.evictions.Add(uint64(evicted))
	log.Debug().Int("evicted", evicted).Int64("size", t.size.Load()).Msg("reclaimed-table-space")
	return t.size.Load() < t.maxEntries
}

// rekey rebuilds the table after every node's key has changed. Nodes for
// which fn reports false are dropped. It must not run concurrently with any
// other table operation.
func (t *Table) rekey(fn func(n *Node) (uint64, bool)) {
	var all []*Node
	for i := range t.shards {
		for _, n := range t.shards[i].m {
			all = append(all, n)
		}
		t.shards[i].m = make(map[uint64]*Node, len(t.shards[i].m))
	}
	for _, n := range all {
		key, keep := fn(n)
		if !keep {
			t.size.Add(-1)
			continue
		}
		n.key = key
		sh := t.shardFor(n.key)
		if _, dup := sh.m[n.key]; dup {
			t.collisions.Add(1)
			t.size.Add(-1)
		}
		sh.m[n.key] = n
	}
}

// Clear removes every node.
func (t *Table) Clear() {
	for i := range t.shards {
		sh := &t.shards[i]
		sh.Lock()
		sh.m = make(map[uint64]*Node)
		sh.Unlock()
	}
	t.size.Store(0)
}
