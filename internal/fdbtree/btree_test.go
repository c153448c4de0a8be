package fdbtree

import (
	"fmt"
	"testing"

	"github.com/gaby/fdata/internal/fdcache"
	"github.com/gaby/fdata/internal/fdclock"
	"github.com/gaby/fdata/internal/fdhandle"
)

// fixedHandle materializes a small, fixed two-level tree keyed by each
// node's declared fileOffset: offset 0 is the root (two sub-nodes at
// offsets 1 and 2); offsets 1 and 2 are leaves, each with two leaf
// values. Leaf node i's value deposited is its own fileOffset.
type fixedHandle struct {
	reads map[int64]int
}

func newFixedHandle() *fixedHandle { return &fixedHandle{reads: map[int64]int{}} }

func (h *fixedHandle) Free() error                        { return nil }
func (h *fixedHandle) Clone() (fdhandle.DataHandle, error) { return newFixedHandle(), nil }

func (h *fixedHandle) ReadNode(io any, tree *Tree[int64], node *Node, cache *fdcache.Cache[int64],
	fileIndex int32, fileOffset int64, size uint64, nodeFlags fdhandle.RangeFlags, readFlags fdhandle.ReadFlags) error {
	h.reads[fileOffset]++
	switch fileOffset {
	case 0:
		if err := node.AppendSubNode(0, 1, 1, 0, []byte("a")); err != nil {
			return err
		}
		return node.AppendSubNode(0, 2, 1, 0, []byte("b"))
	case 1, 2:
		base := fileOffset * 10
		if err := node.AppendLeafValue(0, base+1, 1, 0, []byte(fmt.Sprintf("%d-1", fileOffset))); err != nil {
			return err
		}
		if err := node.AppendLeafValue(0, base+2, 1, 0, []byte(fmt.Sprintf("%d-2", fileOffset))); err != nil {
			return err
		}
		return tree.SetNodeValue(node, cache, fileOffset)
	}
	return nil
}

func newFixedTree() (*Tree[int64], *fixedHandle) {
	h := newFixedHandle()
	tree := New[int64](h, fdhandle.NopDataHandle{}, false, fdclock.NewCounter())
	tree.SubNodesPerNode = 2
	if err := tree.SetRootNode(0, 0, 1, 0); err != nil {
		panic(err)
	}
	return tree, h
}

func TestBTreeRootMaterializesOnFirstAccess(t *testing.T) {
	tree, h := newFixedTree()
	cache := fdcache.New[int64](8)
	root, err := tree.Root(nil, cache)
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	if root.IsLeaf() {
		t.Fatal("root should not be a leaf")
	}
	if root.GetNumberOfSubNodes() != 2 {
		t.Fatalf("GetNumberOfSubNodes() = %d, want 2", root.GetNumberOfSubNodes())
	}
	if h.reads[0] != 1 {
		t.Fatalf("expected exactly one root read, got %d", h.reads[0])
	}
	if _, err := tree.Root(nil, cache); err != nil {
		t.Fatalf("Root (cached): %v", err)
	}
	if h.reads[0] != 1 {
		t.Fatal("second Root() call must not re-invoke ReadNode")
	}
}

func TestBTreeGetNumberOfLeafNodesCountsAllLeafValues(t *testing.T) {
	tree, _ := newFixedTree()
	cache := fdcache.New[int64](8)
	n, err := tree.GetNumberOfLeafNodes(nil, cache)
	if err != nil {
		t.Fatalf("GetNumberOfLeafNodes: %v", err)
	}
	if n != 4 {
		t.Fatalf("GetNumberOfLeafNodes() = %d, want 4 (2 sub-nodes x 2 leaf values)", n)
	}
}

func TestBTreeGetLeafNodeByIndexWalksInOrder(t *testing.T) {
	tree, _ := newFixedTree()
	cache := fdcache.New[int64](8)
	if _, err := tree.GetNumberOfLeafNodes(nil, cache); err != nil {
		t.Fatalf("GetNumberOfLeafNodes: %v", err)
	}
	first, err := tree.GetLeafNodeByIndex(nil, 0, cache)
	if err != nil {
		t.Fatalf("GetLeafNodeByIndex(0): %v", err)
	}
	if !first.IsLeaf() || first.Range().Offset != 1 {
		t.Fatalf("leaf 0 = %+v, want the node at offset 1", first)
	}
	third, err := tree.GetLeafNodeByIndex(nil, 2, cache)
	if err != nil {
		t.Fatalf("GetLeafNodeByIndex(2): %v", err)
	}
	if !third.IsLeaf() || third.Range().Offset != 2 {
		t.Fatalf("leaf 2 = %+v, want the node at offset 2", third)
	}
}

func TestBTreeGetLeafNodeByKeyUsesAuxiliaryIndex(t *testing.T) {
	tree, _ := newFixedTree()
	cache := fdcache.New[int64](8)
	if _, err := tree.GetNumberOfLeafNodes(nil, cache); err != nil {
		t.Fatalf("GetNumberOfLeafNodes: %v", err)
	}
	node, err := tree.GetLeafNodeByKey(nil, []byte("1-1"), cache)
	if err != nil {
		t.Fatalf("GetLeafNodeByKey: %v", err)
	}
	if node.Range().Offset != 1 {
		t.Fatalf("GetLeafNodeByKey(\"1-1\") resolved to offset %d, want 1", node.Range().Offset)
	}
}

func TestBTreeDeletedLeafIsExcludedFromCountButReachable(t *testing.T) {
	tree, _ := newFixedTree()
	cache := fdcache.New[int64](8)
	root, err := tree.Root(nil, cache)
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	child, err := tree.GetSubNodeByIndex(nil, root, 0, cache)
	if err != nil {
		t.Fatalf("GetSubNodeByIndex: %v", err)
	}
	child.SetDeleted()

	n, err := tree.GetNumberOfLeafNodes(nil, cache)
	if err != nil {
		t.Fatalf("GetNumberOfLeafNodes: %v", err)
	}
	if n != 2 {
		t.Fatalf("GetNumberOfLeafNodes() = %d, want 2 (one leaf subtree deleted)", n)
	}
	if tree.GetNumberOfDeletedLeafNodes() != 1 {
		t.Fatalf("GetNumberOfDeletedLeafNodes() = %d, want 1", tree.GetNumberOfDeletedLeafNodes())
	}
	deleted, err := tree.GetDeletedLeafNodeByIndex(0)
	if err != nil {
		t.Fatalf("GetDeletedLeafNodeByIndex: %v", err)
	}
	if !deleted.IsDeleted() {
		t.Fatal("expected the recorded node to report IsDeleted()")
	}
}

func TestBTreeGetNodeValueCachesByLevelIndex(t *testing.T) {
	tree, h := newFixedTree()
	cache := fdcache.New[int64](8)
	root, err := tree.Root(nil, cache)
	if err != nil {
		t.Fatalf("Root: %v", err)
	}
	leaf, err := tree.GetSubNodeByIndex(nil, root, 0, cache)
	if err != nil {
		t.Fatalf("GetSubNodeByIndex: %v", err)
	}
	v1, err := tree.GetNodeValue(nil, leaf, cache, 0)
	if err != nil {
		t.Fatalf("GetNodeValue: %v", err)
	}
	if v1 != 1 {
		t.Fatalf("node value = %d, want 1 (leaf fileOffset)", v1)
	}
	if h.reads[1] != 1 {
		t.Fatalf("expected one ReadNode call for offset 1, got %d", h.reads[1])
	}
	v2, err := tree.GetNodeValue(nil, leaf, cache, 0)
	if err != nil {
		t.Fatalf("GetNodeValue (cached): %v", err)
	}
	if v2 != v1 || h.reads[1] != 1 {
		t.Fatal("second GetNodeValue call must hit the cache, not re-invoke ReadNode")
	}
}
