package merkle

import (
	"encoding/binary"
	"fmt"
)

// ProofSize is the serialized size of a partial proof.
const ProofSize = 8 + 32 + TreeHeight*32

// Proof is a partial Merkle proof: a leaf value, its index, and one
// sibling per level. It can be verified against a reference root without
// access to the tree that produced it.
type Proof struct {
	Index    uint64
	Value    Hash
	Siblings [TreeHeight]Hash
}

// ComputeRoot hashes the value up through the siblings. At each level the
// node is a right child iff the corresponding bit of the index is set.
func (p *Proof) ComputeRoot() Hash {
	current := p.Value
	index := p.Index
	for i := 0; i < TreeHeight; i++ {
		if index&1 == 1 {
			current = HashTwo(p.Siblings[i], current)
		} else {
			current = HashTwo(current, p.Siblings[i])
		}
		index >>= 1
	}
	return current
}

// Verify returns true if the proof hashes up to the reference root.
func (p *Proof) Verify(root Hash) bool {
	return p.ComputeRoot() == root
}

// MarshalBinary serializes the proof as index (LE u64), value, then the
// siblings, low level first.
func (p *Proof) MarshalBinary() ([]byte, error) {
	buf := make([]byte, ProofSize)
	binary.LittleEndian.PutUint64(buf[0:8], p.Index)
	copy(buf[8:40], p.Value[:])
	for i := 0; i < TreeHeight; i++ {
		copy(buf[40+i*32:], p.Siblings[i][:])
	}
	return buf, nil
}

// UnmarshalBinary restores a proof written by MarshalBinary.
func (p *Proof) UnmarshalBinary(data []byte) error {
	if len(data) != ProofSize {
		return fmt.Errorf("partial proof must be %d bytes, got %d", ProofSize, len(data))
	}
	p.Index = binary.LittleEndian.Uint64(data[0:8])
	copy(p.Value[:], data[8:40])
	for i := 0; i < TreeHeight; i++ {
		copy(p.Siblings[i][:], data[40+i*32:])
	}
	return nil
}
