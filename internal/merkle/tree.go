package merkle

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// TreeHeight is the fixed height of every append-only tree in the bridge.
// The tree caps at 2^32 leaves.
const TreeHeight = 32

// TreeStateSize is the serialized size of a Tree: next index (u64),
// current root, and one frontier sibling per level.
const TreeStateSize = 8 + 32 + TreeHeight*32

// Tree errors.
var (
	ErrTreeFull                     = errors.New("append tree is full")
	ErrRevertIndexTooHigh           = errors.New("revert index is not below the next leaf index")
	ErrNotEnoughChangedLeftSiblings = errors.New("not enough changed left siblings")
	ErrTooManyChangedLeftSiblings   = errors.New("too many changed left siblings")
	ErrRevertIndexNotPrefix         = errors.New("revert target is not a prefix of the tree")
)

// Tree is a fixed-height append-only SHA-256 Merkle tree. Only the frontier
// (one pending left node per level) and the current root are stored; past
// leaves are never revisited. The root is kept consistent on every mutation
// so callers never re-hash the tree.
type Tree struct {
	NextIndex uint64
	Root      Hash
	Siblings  [TreeHeight]Hash
}

// NewTree returns an empty tree. The root of an empty tree is the
// height-32 zero hash.
func NewTree() *Tree {
	t := &Tree{Root: zeroHashes[TreeHeight]}
	for i := 0; i < TreeHeight; i++ {
		t.Siblings[i] = zeroHashes[i]
	}
	return t
}

// Append adds a leaf and updates the frontier and root in O(TreeHeight).
func (t *Tree) Append(leaf Hash) error {
	if t.NextIndex >= 1<<TreeHeight {
		return ErrTreeFull
	}

	current := leaf
	index := t.NextIndex
	for i := 0; i < TreeHeight; i++ {
		if index&1 == 0 {
			t.Siblings[i] = current
			current = HashTwo(current, zeroHashes[i])
		} else {
			current = HashTwo(t.Siblings[i], current)
		}
		index >>= 1
	}

	t.Root = current
	t.NextIndex++
	return nil
}

// AppendDelta appends a leaf and returns the partial proof for it. The
// proof's siblings are captured before the append, so a verifier can
// recompute both the pre-append root (with a zero leaf at the index) and
// the post-append root (with the returned value).
func (t *Tree) AppendDelta(leaf Hash) (Proof, error) {
	proof := t.ProofAtNextIndex()
	proof.Value = leaf
	if err := t.Append(leaf); err != nil {
		return Proof{}, err
	}
	return proof, nil
}

// RevertToIndex rewinds the tree so that it contains exactly newNextIndex
// leaves. changedLeft supplies, bottom-up, the left sibling for each level
// at which the path of leaf newNextIndex-1 is a right child; these are the
// nodes the reverted appends may have overwritten. leafAtPrev is the leaf
// at index newNextIndex-1, which becomes the last leaf of the tree.
func (t *Tree) RevertToIndex(newNextIndex uint64, changedLeft []Hash, leafAtPrev Hash) error {
	if newNextIndex >= t.NextIndex {
		return ErrRevertIndexTooHigh
	}
	if newNextIndex == 0 {
		return ErrRevertIndexNotPrefix
	}

	var siblings [TreeHeight]Hash
	current := leafAtPrev
	index := newNextIndex - 1
	consumed := 0
	for i := 0; i < TreeHeight; i++ {
		if index&1 == 1 {
			if consumed >= len(changedLeft) {
				return ErrNotEnoughChangedLeftSiblings
			}
			left := changedLeft[consumed]
			consumed++
			// The slot stays material only when bit i survives the +1
			// carry into newNextIndex.
			if newNextIndex>>uint(i)&1 == 1 {
				siblings[i] = left
			} else {
				siblings[i] = zeroHashes[i]
			}
			current = HashTwo(left, current)
		} else {
			siblings[i] = current
			current = HashTwo(current, zeroHashes[i])
		}
		index >>= 1
	}
	if consumed != len(changedLeft) {
		return ErrTooManyChangedLeftSiblings
	}

	t.Siblings = siblings
	t.Root = current
	t.NextIndex = newNextIndex
	return nil
}

// ProofAtNextIndex returns the partial proof for the next (still zero) leaf
// slot. It verifies against the current root with the zero leaf as value.
func (t *Tree) ProofAtNextIndex() Proof {
	proof := Proof{Index: t.NextIndex, Value: zeroHashes[0]}
	index := t.NextIndex
	for i := 0; i < TreeHeight; i++ {
		if index&1 == 1 {
			proof.Siblings[i] = t.Siblings[i]
		} else {
			proof.Siblings[i] = zeroHashes[i]
		}
		index >>= 1
	}
	return proof
}

// MarshalBinary serializes the tree state as next index (LE u64), root,
// then the frontier, low level first.
func (t *Tree) MarshalBinary() ([]byte, error) {
	buf := make([]byte, TreeStateSize)
	binary.LittleEndian.PutUint64(buf[0:8], t.NextIndex)
	copy(buf[8:40], t.Root[:])
	for i := 0; i < TreeHeight; i++ {
		copy(buf[40+i*32:], t.Siblings[i][:])
	}
	return buf, nil
}

// UnmarshalBinary restores the tree state written by MarshalBinary.
func (t *Tree) UnmarshalBinary(data []byte) error {
	if len(data) != TreeStateSize {
		return fmt.Errorf("tree state must be %d bytes, got %d", TreeStateSize, len(data))
	}
	t.NextIndex = binary.LittleEndian.Uint64(data[0:8])
	copy(t.Root[:], data[8:40])
	for i := 0; i < TreeHeight; i++ {
		copy(t.Siblings[i][:], data[40+i*32:])
	}
	return nil
}
