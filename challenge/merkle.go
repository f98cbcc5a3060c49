package challenge

import (
	"crypto/sha256"
	"errors"
	"math/bits"
)

// ErrIndexOutOfRange is returned when a proof is requested for a leaf the
// tree does not have.
var ErrIndexOutOfRange = errors.New("challenge: leaf index out of range")

// Leaf hashes a data block into a tree leaf.
func Leaf(data []byte) Hash {
	return sha256.Sum256(data)
}

// DoubleHash is the commitment a consumer publishes for an answer it expects.
func DoubleHash(reply Hash) Hash {
	first := sha256.Sum256(reply[:])
	return sha256.Sum256(first[:])
}

func pair(left, right Hash) Hash {
	var buf [64]byte
	copy(buf[:32], left[:])
	copy(buf[32:], right[:])
	return sha256.Sum256(buf[:])
}

// Depth returns the number of sibling hashes in a proof for a tree of count
// leaves.
func Depth(count uint64) int {
	if count <= 1 {
		return 0
	}
	return bits.Len64(count - 1)
}

// Root computes the Merkle root of leaves. A level with an odd number of
// nodes pairs its last node with itself.
func Root(leaves []Hash) Hash {
	if len(leaves) == 0 {
		return Hash{}
	}

	level := append([]Hash(nil), leaves...)
	for len(level) > 1 {
		level = fold(level)
	}
	return level[0]
}

func fold(level []Hash) []Hash {
	next := make([]Hash, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		right := level[i]
		if i+1 < len(level) {
			right = level[i+1]
		}
		next = append(next, pair(level[i], right))
	}
	return next
}

// Proof returns the sibling path of leaf index, bottom up.
func Proof(leaves []Hash, index uint64) ([]Hash, error) {
	if index >= uint64(len(leaves)) {
		return nil, ErrIndexOutOfRange
	}

	var path []Hash
	level := append([]Hash(nil), leaves...)
	for len(level) > 1 {
		sib := index ^ 1
		if sib >= uint64(len(level)) {
			sib = index
		}
		path = append(path, level[sib])
		level = fold(level)
		index >>= 1
	}
	return path, nil
}

// Fold re-derives a root from a leaf, its index and its sibling path. At
// each level an even index hashes leaf‖sibling and an odd index hashes
// sibling‖leaf.
func Fold(leaf Hash, index uint64, proof []Hash) Hash {
	node := leaf
	for _, sib := range proof {
		if index%2 == 0 {
			node = pair(node, sib)
		} else {
			node = pair(sib, node)
		}
		index >>= 1
	}
	return node
}

// Verify reports whether proof places leaf at index in the tree of count
// leaves committed to by root.
func Verify(root Hash, count, index uint64, leaf Hash, proof []Hash) bool {
	if index >= count || len(proof) != Depth(count) {
		return false
	}
	return Fold(leaf, index, proof) == root
}
