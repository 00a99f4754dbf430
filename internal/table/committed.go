package table

// committedNode is one node in the committed list. The per-type index
// holds a pointer directly to the node so replacement/removal is O(1)
// without a list scan.
type committedNode struct {
	entry Entry
	prev  *committedNode
	next  *committedNode
}

// committedList is the ordered committed view (C5): a doubly linked list
// ascending by seq, plus a per-type (key -> node) index. The list may
// carry at most one trailing tombstone node, kept solely so
// highestCommittedSeq can advance past a delete without leaving a live
// index entry behind.
type committedList struct {
	head *committedNode
	tail *committedNode
	size int

	// index[type][key] -> node. Live (non-tombstone) entries only; a
	// tombstone is never indexed.
	index map[string]map[string]*committedNode
}

func newCommittedList() *committedList {
	return &committedList{index: make(map[string]map[string]*committedNode)}
}

func (c *committedList) Len() int { return c.size }

func (c *committedList) tailSeq() (uint64, bool) {
	if c.tail == nil {
		return 0, false
	}
	return c.tail.entry.Seq, true
}

// unlink removes a node from the list in O(1). It does not touch the
// index; callers manage that separately.
func (c *committedList) unlink(n *committedNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.prev = nil
	n.next = nil
	c.size--
}

func (c *committedList) appendTail(n *committedNode) {
	n.prev = c.tail
	n.next = nil
	if c.tail != nil {
		c.tail.next = n
	} else {
		c.head = n
	}
	c.tail = n
	c.size++
}

// apply implements 4.4: applying one entry to the committed view.
//
// Ensure a per-type key map exists. If none exists and the entry is a
// delete, return without side effect. If a prior live entry exists,
// unlink it and drop its index slot. Non-delete entries get a fresh
// index slot; deletes get none. Before appending the new node, if the
// current tail is a tombstone, evict it — a tombstone survives only
// until the next commit, its sole purpose being to let
// highestCommittedSeq advance past a delete.
func (c *committedList) apply(e Entry) {
	byKey, typeExists := c.index[e.Type]
	if !typeExists {
		if e.IsDelete {
			return
		}
		byKey = make(map[string]*committedNode)
		c.index[e.Type] = byKey
	}

	if prior, ok := byKey[e.Key]; ok {
		c.unlink(prior)
		delete(byKey, e.Key)
	}

	if c.tail != nil && c.tail.entry.IsDelete {
		c.unlink(c.tail)
	}

	n := &committedNode{entry: e}
	c.appendTail(n)

	if !e.IsDelete {
		byKey[e.Key] = n
	}
}

func (c *committedList) tryGet(typ, key string) ([]byte, bool) {
	byKey, ok := c.index[typ]
	if !ok {
		return nil, false
	}
	n, ok := byKey[key]
	if !ok {
		return nil, false
	}
	return n.entry.Value, true
}

// keysUnsorted returns the type's live keys in index-iteration (unsorted)
// order. Callers sort outside any lock, per the design's tradeoff of an
// unsorted index plus on-demand sort over a sorted associative container.
func (c *committedList) keysUnsorted(typ string) []string {
	byKey, ok := c.index[typ]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(byKey))
	for k := range byKey {
		out = append(out, k)
	}
	return out
}

func (c *committedList) values(typ string) [][]byte {
	byKey, ok := c.index[typ]
	if !ok {
		return nil
	}
	out := make([][]byte, 0, len(byKey))
	for _, n := range byKey {
		out = append(out, n.entry.Value)
	}
	return out
}

// entriesOfType returns a shallow-copied, seq-ordered slice of the type's
// live committed entries, for the plain (non-snapshot-bound) enumerator.
func (c *committedList) entriesOfType(typ string) []Entry {
	var out []Entry
	for n := c.head; n != nil; n = n.next {
		if n.entry.Type == typ && !n.entry.IsDelete {
			out = append(out, n.entry.clone())
		}
	}
	return out
}

// snapshotUpTo copies entries with seq <= maxSeq walking from the head,
// stopping at the first entry exceeding it (the list is ordered by seq),
// and reports the highest seq copied.
func (c *committedList) snapshotUpTo(maxSeq uint64) (entries []Entry, highest uint64, any bool) {
	for n := c.head; n != nil; n = n.next {
		if n.entry.Seq > maxSeq {
			break
		}
		entries = append(entries, n.entry.clone())
		highest = n.entry.Seq
		any = true
	}
	return entries, highest, any
}
