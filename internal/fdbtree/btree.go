// Package fdbtree implements the lazily-materialized node tree from
// spec.md §4.9: a root set once via SetRootNode, whose children and
// leaf values are populated on demand by a client read callback. An
// auxiliary key-ordered index (github.com/google/btree, as used
// elsewhere in the retrieved example pack for the same "ordered index
// over application values" role) accelerates key-based leaf lookup
// alongside the spec's own index-based leaf walk.
package fdbtree

import (
	"bytes"

	"github.com/google/btree"

	"github.com/gaby/fdata/internal/fdcache"
	"github.com/gaby/fdata/internal/fdclock"
	"github.com/gaby/fdata/internal/fderrors"
	"github.com/gaby/fdata/internal/fdhandle"
	"github.com/gaby/fdata/internal/fdrange"
)

// Handle is the b-tree's read callback trait. ReadNode is expected to
// populate node via repeated calls to Node.AppendSubNode or
// Node.AppendLeafValue (never both on the same node).
type Handle[V any] interface {
	fdhandle.DataHandle

	ReadNode(io any, tree *Tree[V], node *Node, cache *fdcache.Cache[V],
		fileIndex int32, fileOffset int64, size uint64,
		nodeFlags fdhandle.RangeFlags, readFlags fdhandle.ReadFlags) error
}

// childRef is an unresolved descriptor for a sub-node or leaf value: a
// Range plus the client-defined key used for ordered lookup.
type childRef struct {
	r   fdrange.Range
	key []byte
}

// Node is one vertex of the lazily-materialized tree. Its sub-node/
// leaf-value arrays mirror §4.4's Range-array, one entry per declared
// child.
type Node struct {
	r      fdrange.Range
	key    []byte
	level  int32

	loaded    bool
	isLeaf    bool
	isDeleted bool

	subNodes   []childRef
	leafValues []childRef

	children []*Node // materialized sub-nodes, parallel to subNodes; nil until fetched

	siblingIndex int32 // position within the parent's subNodes array
	levelIndex   int64 // best-effort running index within this node's level, used as the node-value cache key

	firstLeafIndex         int64
	calculateLeafNodeValues bool

	timestamp int64
}

func (n *Node) Level() int32      { return n.level }
func (n *Node) IsLeaf() bool      { return n.isLeaf }
func (n *Node) IsDeleted() bool   { return n.isDeleted }
func (n *Node) Range() fdrange.Range { return n.r }
func (n *Node) Key() []byte       { return n.key }

// GetNumberOfSubNodes returns the node's declared child count.
func (n *Node) GetNumberOfSubNodes() int { return len(n.subNodes) }

// AppendSubNode is called by the read callback while populating a
// non-leaf node.
func (n *Node) AppendSubNode(fileIndex int32, offset int64, size uint64, flags uint32, key []byte) error {
	if n.isLeaf {
		return fderrors.New("fdbtree.Node.AppendSubNode", fderrors.Runtime, fderrors.ConflictingValue)
	}
	r, err := fdrange.New(fileIndex, offset, size, flags)
	if err != nil {
		return err
	}
	n.subNodes = append(n.subNodes, childRef{r: r, key: append([]byte(nil), key...)})
	n.children = append(n.children, nil)
	n.calculateLeafNodeValues = true
	return nil
}

// InsertSubNode inserts a child descriptor at position i.
func (n *Node) InsertSubNode(i int, fileIndex int32, offset int64, size uint64, flags uint32, key []byte) error {
	if n.isLeaf {
		return fderrors.New("fdbtree.Node.InsertSubNode", fderrors.Runtime, fderrors.ConflictingValue)
	}
	if i < 0 || i > len(n.subNodes) {
		return fderrors.New("fdbtree.Node.InsertSubNode", fderrors.Runtime, fderrors.ValueOutOfBounds)
	}
	r, err := fdrange.New(fileIndex, offset, size, flags)
	if err != nil {
		return err
	}
	ref := childRef{r: r, key: append([]byte(nil), key...)}
	n.subNodes = append(n.subNodes, childRef{})
	copy(n.subNodes[i+1:], n.subNodes[i:])
	n.subNodes[i] = ref
	n.children = append(n.children, nil)
	copy(n.children[i+1:], n.children[i:])
	n.children[i] = nil
	n.calculateLeafNodeValues = true
	return nil
}

// SplitSubNodes splits this node's children at pivot, truncating this
// node to [0, pivot) and returning a new sibling node holding
// [pivot, end) at the same level and with the same parent range
// identity (the caller is responsible for linking the sibling into the
// parent's own subNodes).
func (n *Node) SplitSubNodes(pivot int) (*Node, error) {
	if n.isLeaf {
		return nil, fderrors.New("fdbtree.Node.SplitSubNodes", fderrors.Runtime, fderrors.ConflictingValue)
	}
	if pivot < 0 || pivot > len(n.subNodes) {
		return nil, fderrors.New("fdbtree.Node.SplitSubNodes", fderrors.Runtime, fderrors.ValueOutOfBounds)
	}
	sibling := &Node{level: n.level, loaded: true}
	sibling.subNodes = append(sibling.subNodes, n.subNodes[pivot:]...)
	sibling.children = append(sibling.children, n.children[pivot:]...)
	n.subNodes = n.subNodes[:pivot]
	n.children = n.children[:pivot]
	n.calculateLeafNodeValues = true
	return sibling, nil
}

// GetNumberOfLeafValues returns the node's declared leaf-value count
// (leaf nodes only).
func (n *Node) GetNumberOfLeafValues() int { return len(n.leafValues) }

// AppendLeafValue is called by the read callback while populating a
// leaf node.
func (n *Node) AppendLeafValue(fileIndex int32, offset int64, size uint64, flags uint32, key []byte) error {
	if len(n.subNodes) > 0 {
		return fderrors.New("fdbtree.Node.AppendLeafValue", fderrors.Runtime, fderrors.ConflictingValue)
	}
	r, err := fdrange.New(fileIndex, offset, size, flags)
	if err != nil {
		return err
	}
	n.isLeaf = true
	n.leafValues = append(n.leafValues, childRef{r: r, key: append([]byte(nil), key...)})
	return nil
}

// GetLeafValueByIndex returns leaf value i's range and key.
func (n *Node) GetLeafValueByIndex(i int) (fdrange.Range, []byte, error) {
	if !n.isLeaf || i < 0 || i >= len(n.leafValues) {
		return fdrange.Range{}, nil, fderrors.New("fdbtree.Node.GetLeafValueByIndex", fderrors.Runtime, fderrors.ValueOutOfBounds)
	}
	return n.leafValues[i].r, n.leafValues[i].key, nil
}

// SetDeleted marks this node logically deleted.
func (n *Node) SetDeleted() { n.isDeleted = true }

// SetDeletedSubNode marks sub-node i's child as deleted without
// unlinking it from the parent's array, so it remains reachable via
// Tree.GetDeletedLeafNodeByIndex.
func (n *Node) SetDeletedSubNode(i int) error {
	if i < 0 || i >= len(n.children) {
		return fderrors.New("fdbtree.Node.SetDeletedSubNode", fderrors.Runtime, fderrors.ValueOutOfBounds)
	}
	if n.children[i] != nil {
		n.children[i].isDeleted = true
	}
	return nil
}

type keyEntry struct {
	key       []byte
	leafIndex int64
}

func keyLess(a, b keyEntry) bool { return bytes.Compare(a.key, b.key) < 0 }

// Tree is the lazily-materialized node DAG aggregate from spec.md §4.9.
type Tree[V any] struct {
	clock   fdclock.Clock
	handle  Handle[V]
	dataHandle    fdhandle.DataHandle
	handleManaged bool

	root *Node

	// SubNodesPerNode, when set, is used only as the multiplier for the
	// best-effort per-level node-value cache key (levelIndex); the tree
	// otherwise imposes no fan-out limit of its own, since that is the
	// read callback's concern.
	SubNodesPerNode int32

	deletedLeaves []*Node
	keyIndex      *btree.BTreeG[keyEntry]
}

// New constructs an empty tree (no root set yet).
func New[V any](handle Handle[V], dataHandle fdhandle.DataHandle, managed bool, clock fdclock.Clock) *Tree[V] {
	if clock == nil {
		clock = fdclock.Monotonic()
	}
	return &Tree[V]{
		clock: clock, handle: handle, dataHandle: dataHandle, handleManaged: managed,
		keyIndex: btree.NewG(32, keyLess),
	}
}

// SetRootNode installs the tree's root descriptor. The root is not
// materialized (its ReadNode invoked) until first accessed.
func (t *Tree[V]) SetRootNode(fileIndex int32, offset int64, size uint64, flags uint32) error {
	r, err := fdrange.New(fileIndex, offset, size, flags)
	if err != nil {
		return err
	}
	t.root = &Node{r: r, timestamp: t.clock.Now()}
	t.deletedLeaves = nil
	t.keyIndex = btree.NewG(32, keyLess)
	return nil
}

func (t *Tree[V]) materialize(io any, node *Node, cache *fdcache.Cache[V]) error {
	if node.loaded {
		return nil
	}
	if t.handle == nil {
		return fderrors.New("fdbtree.Tree.materialize", fderrors.Runtime, fderrors.ValueMissing)
	}
	if err := t.handle.ReadNode(io, t, node, cache, node.r.FileIndex, node.r.Offset, node.r.Size, node.r.Flags, 0); err != nil {
		return fderrors.Wrap("fdbtree.Tree.materialize", fderrors.IO, fderrors.ReadFailed, err)
	}
	node.loaded = true
	return nil
}

func (t *Tree[V]) childAt(io any, parent *Node, i int, cache *fdcache.Cache[V]) (*Node, error) {
	if i < 0 || i >= len(parent.subNodes) {
		return nil, fderrors.New("fdbtree.Tree.childAt", fderrors.Runtime, fderrors.ValueOutOfBounds)
	}
	if parent.children[i] != nil {
		return parent.children[i], nil
	}
	ref := parent.subNodes[i]
	child := &Node{
		r: ref.r, key: ref.key, level: parent.level + 1,
		siblingIndex: int32(i), timestamp: t.clock.Now(),
	}
	if t.SubNodesPerNode > 0 {
		child.levelIndex = parent.levelIndex*int64(t.SubNodesPerNode) + int64(i)
	} else {
		child.levelIndex = int64(i)
	}
	parent.children[i] = child
	return child, nil
}

// GetSubNodeByIndex materializes (if needed) and returns child i of
// node, invoking the read callback on first access.
func (t *Tree[V]) GetSubNodeByIndex(io any, node *Node, i int, cache *fdcache.Cache[V]) (*Node, error) {
	child, err := t.childAt(io, node, i, cache)
	if err != nil {
		return nil, err
	}
	if err := t.materialize(io, child, cache); err != nil {
		return nil, err
	}
	return child, nil
}

// Root returns the (possibly not yet materialized) root node.
func (t *Tree[V]) Root(io any, cache *fdcache.Cache[V]) (*Node, error) {
	if t.root == nil {
		return nil, fderrors.New("fdbtree.Tree.Root", fderrors.Runtime, fderrors.ValueMissing)
	}
	if err := t.materialize(io, t.root, cache); err != nil {
		return nil, err
	}
	return t.root, nil
}

// countLeaves recomputes (or reuses) a node's subtree leaf count,
// recursing through materialized children and materializing more as
// needed, updating firstLeafIndex as it goes. It also registers every
// encountered leaf's key in the auxiliary ordered index and records
// deleted leaves.
func (t *Tree[V]) countLeaves(io any, node *Node, cache *fdcache.Cache[V], runningIndex *int64) (int64, error) {
	if err := t.materialize(io, node, cache); err != nil {
		return 0, err
	}
	if node.isLeaf {
		node.firstLeafIndex = *runningIndex
		node.calculateLeafNodeValues = false
		count := int64(0)
		if node.isDeleted {
			t.deletedLeaves = append(t.deletedLeaves, node)
			return 0, nil
		}
		for _, ref := range node.leafValues {
			t.keyIndex.ReplaceOrInsert(keyEntry{key: ref.key, leafIndex: *runningIndex})
			count++
			*runningIndex++
		}
		return count, nil
	}
	node.firstLeafIndex = *runningIndex
	node.calculateLeafNodeValues = false
	var total int64
	for i := range node.subNodes {
		child, err := t.childAt(io, node, i, cache)
		if err != nil {
			return 0, err
		}
		n, err := t.countLeaves(io, child, cache, runningIndex)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// GetNumberOfLeafNodes walks the tree, materializing nodes on demand,
// and returns the total count of non-deleted leaf values.
func (t *Tree[V]) GetNumberOfLeafNodes(io any, cache *fdcache.Cache[V]) (int64, error) {
	root, err := t.Root(io, cache)
	if err != nil {
		return 0, err
	}
	t.deletedLeaves = nil
	var running int64
	return t.countLeaves(io, root, cache, &running)
}

// subtreeLeafCount returns a subtree's leaf count without touching
// deletedLeaves or the key index — the read-only counterpart to
// countLeaves used for descent once firstLeafIndex values are current.
func (t *Tree[V]) subtreeLeafCount(io any, node *Node, cache *fdcache.Cache[V]) (int64, error) {
	if err := t.materialize(io, node, cache); err != nil {
		return 0, err
	}
	if node.isLeaf {
		if node.isDeleted {
			return 0, nil
		}
		return int64(len(node.leafValues)), nil
	}
	var total int64
	for i := range node.subNodes {
		child, err := t.childAt(io, node, i, cache)
		if err != nil {
			return 0, err
		}
		n, err := t.subtreeLeafCount(io, child, cache)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// GetLeafNodeByIndex walks from the root, descending into the child
// whose firstLeafIndex..firstLeafIndex+count span contains i. Callers
// must have called GetNumberOfLeafNodes at least once since the last
// structural mutation so firstLeafIndex values are current.
func (t *Tree[V]) GetLeafNodeByIndex(io any, index int64, cache *fdcache.Cache[V]) (*Node, error) {
	node, err := t.Root(io, cache)
	if err != nil {
		return nil, err
	}
	for {
		if node.isLeaf {
			return node, nil
		}
		found := false
		for i := range node.subNodes {
			child, err := t.GetSubNodeByIndex(io, node, i, cache)
			if err != nil {
				return nil, err
			}
			count, err := t.subtreeLeafCount(io, child, cache)
			if err != nil {
				return nil, err
			}
			if index >= child.firstLeafIndex && index < child.firstLeafIndex+count {
				node = child
				found = true
				break
			}
		}
		if !found {
			return nil, fderrors.New("fdbtree.Tree.GetLeafNodeByIndex", fderrors.Runtime, fderrors.ValueOutOfBounds)
		}
	}
}

// GetLeafNodeByKey uses the auxiliary google/btree-backed ordered index
// to locate the leaf registered under key, failing with ValueMissing if
// the key is not in the index (including when the index has not been
// populated by a prior GetNumberOfLeafNodes walk).
func (t *Tree[V]) GetLeafNodeByKey(io any, key []byte, cache *fdcache.Cache[V]) (*Node, error) {
	entry, ok := t.keyIndex.Get(keyEntry{key: key})
	if !ok {
		return nil, fderrors.New("fdbtree.Tree.GetLeafNodeByKey", fderrors.Runtime, fderrors.ValueMissing)
	}
	return t.GetLeafNodeByIndex(io, entry.leafIndex, cache)
}

// GetNumberOfDeletedLeafNodes returns the count of leaves observed as
// deleted during the most recent GetNumberOfLeafNodes walk.
func (t *Tree[V]) GetNumberOfDeletedLeafNodes() int64 { return int64(len(t.deletedLeaves)) }

// GetDeletedLeafNodeByIndex returns the i-th deleted leaf found during
// the most recent walk.
func (t *Tree[V]) GetDeletedLeafNodeByIndex(i int64) (*Node, error) {
	if i < 0 || i >= int64(len(t.deletedLeaves)) {
		return nil, fderrors.New("fdbtree.Tree.GetDeletedLeafNodeByIndex", fderrors.Runtime, fderrors.ValueOutOfBounds)
	}
	return t.deletedLeaves[i], nil
}

// GetNodeValue reads node's cached value, keyed by its best-effort
// per-level index. On a miss it invokes the read callback only if node
// has not been materialized yet; the callback is expected to deposit its
// result via SetNodeValue. A miss on an already-materialized node
// (including one forced by IgnoreCache) does not re-invoke the callback
// and fails with ValueMissing.
func (t *Tree[V]) GetNodeValue(io any, node *Node, cache *fdcache.Cache[V], readFlags fdhandle.ReadFlags) (V, error) {
	var zero V
	want := fdcache.Identifier{FileIndex: node.r.FileIndex, Offset: node.r.Offset, Timestamp: node.timestamp}
	slot := fdcache.Slot(int(node.levelIndex), cache.NumberOfEntries())
	if readFlags&fdhandle.IgnoreCache == 0 {
		if v, ok := cache.Lookup(slot, want); ok {
			return v, nil
		}
	}
	if err := t.materialize(io, node, cache); err != nil {
		return zero, err
	}
	v, ok := cache.Lookup(slot, want)
	if !ok {
		return zero, fderrors.New("fdbtree.Tree.GetNodeValue", fderrors.Runtime, fderrors.ValueMissing)
	}
	return v, nil
}

// SetNodeValue deposits a node's value into its cache slot; called by
// the read callback during ReadNode.
func (t *Tree[V]) SetNodeValue(node *Node, cache *fdcache.Cache[V], value V) error {
	id := fdcache.Identifier{FileIndex: node.r.FileIndex, Offset: node.r.Offset, Timestamp: node.timestamp}
	slot := fdcache.Slot(int(node.levelIndex), cache.NumberOfEntries())
	if slot < 0 {
		return fderrors.New("fdbtree.Tree.SetNodeValue", fderrors.Runtime, fderrors.ValueMissing)
	}
	return cache.SetValueByIndex(slot, id, value)
}

// Close frees the tree's data handle if managed.
func (t *Tree[V]) Close() error {
	t.root = nil
	t.deletedLeaves = nil
	if t.handleManaged && t.dataHandle != nil {
		return t.dataHandle.Free()
	}
	return nil
}
