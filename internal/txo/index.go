// Package txo implements the bit-packed transaction-output index encodings
// used by the bridge. A Dogecoin output is addressed by (block number,
// transaction number, output number); up to 4096 outputs of one transaction
// are represented as a 16-leaf subtree of 256-bit leaves, so the 12 output
// bits split into a 4-bit leaf selector and an 8-bit position inside the
// leaf.
package txo

import "errors"

// Field widths in bits.
const (
	BlockBits      = 28
	TxBits         = 13
	OutputBits     = 12
	OutputLeafBits = 4

	// CombinedIndexBits is the width of a combined index:
	// block(28) | tx(13) | output(12).
	CombinedIndexBits = BlockBits + TxBits + OutputBits // 53

	// MerkleIndexBits is the width of a Merkle index:
	// block(28) | tx(13) | leaf(4).
	MerkleIndexBits = BlockBits + TxBits + OutputLeafBits // 45
)

const (
	maxBlock      = 1<<BlockBits - 1
	maxTx         = 1<<TxBits - 1
	maxOutput     = 1<<OutputBits - 1
	maxOutputLeaf = 1<<OutputLeafBits - 1
)

// ErrFieldTooWide is returned when a component does not fit its declared width.
var ErrFieldTooWide = errors.New("txo index field exceeds its bit width")

// CombinedIndex is a 53-bit packed (block, tx, output) triple.
type CombinedIndex uint64

// MerkleIndex is a 45-bit packed (block, tx, output leaf) triple. It is the
// leaf index of the per-output spent bit inside the spent-TXO tree.
type MerkleIndex uint64

// NewCombinedIndex packs the triple, validating field widths.
func NewCombinedIndex(block uint32, tx uint16, output uint16) (CombinedIndex, error) {
	if uint64(block) > maxBlock || uint64(tx) > maxTx || uint64(output) > maxOutput {
		return 0, ErrFieldTooWide
	}
	v := uint64(block)<<(TxBits+OutputBits) | uint64(tx)<<OutputBits | uint64(output)
	return CombinedIndex(v), nil
}

// NewMerkleIndex packs the triple, validating field widths.
func NewMerkleIndex(block uint32, tx uint16, leaf uint8) (MerkleIndex, error) {
	if uint64(block) > maxBlock || uint64(tx) > maxTx || uint64(leaf) > maxOutputLeaf {
		return 0, ErrFieldTooWide
	}
	v := uint64(block)<<(TxBits+OutputLeafBits) | uint64(tx)<<OutputLeafBits | uint64(leaf)
	return MerkleIndex(v), nil
}

// ParseCombinedIndex validates that a raw u64 fits in 53 bits.
func ParseCombinedIndex(v uint64) (CombinedIndex, error) {
	if v >= 1<<CombinedIndexBits {
		return 0, ErrFieldTooWide
	}
	return CombinedIndex(v), nil
}

// Decode unpacks the triple.
func (c CombinedIndex) Decode() (block uint32, tx uint16, output uint16) {
	block = uint32(c >> (TxBits + OutputBits) & maxBlock)
	tx = uint16(c >> OutputBits & maxTx)
	output = uint16(c & maxOutput)
	return
}

// BlockHeight returns the Dogecoin block number of the output.
func (c CombinedIndex) BlockHeight() uint32 {
	return uint32(c >> (TxBits + OutputBits) & maxBlock)
}

// MerkleIndex converts the combined index to the Merkle leaf index of the
// output's spent bit. The top 4 output bits select the leaf.
func (c CombinedIndex) MerkleIndex() MerkleIndex {
	block, tx, output := c.Decode()
	idx, _ := NewMerkleIndex(block, tx, uint8(output>>8))
	return idx
}

// OutputBit returns the bit position of the output inside its 256-bit leaf.
func (c CombinedIndex) OutputBit() uint8 {
	return uint8(c & 0xff)
}

// Decode unpacks the triple.
func (m MerkleIndex) Decode() (block uint32, tx uint16, leaf uint8) {
	block = uint32(m >> (TxBits + OutputLeafBits) & maxBlock)
	tx = uint16(m >> OutputLeafBits & maxTx)
	leaf = uint8(m & maxOutputLeaf)
	return
}

// BlockHeight returns the Dogecoin block number of the leaf.
func (m MerkleIndex) BlockHeight() uint32 {
	return uint32(m >> (TxBits + OutputLeafBits) & maxBlock)
}
