// Package merkle implements the hash-tree commitment scheme over an ordered
// trade list. Trees are built bottom-up with SHA-256; an odd-length layer
// pairs its last node with itself. Proof verification is order-sensitive:
// the left/right position of each sibling must match the build-time
// convention.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/veradex/tradecore/internal/domain"
)

// Tree is an immutable Merkle tree. layers[0] holds the leaf hashes,
// layers[len-1] the single root hash.
type Tree struct {
	layers [][][]byte
}

// Build constructs a tree over the given leaves. The leaf order is part of
// the commitment; reordering leaves yields a different root.
func Build(leaves [][]byte) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, domain.ErrEmptyLeaves
	}

	layer := make([][]byte, len(leaves))
	for i, leaf := range leaves {
		layer[i] = leafHash(leaf)
	}

	layers := [][][]byte{layer}
	for len(layer) > 1 {
		next := make([][]byte, 0, (len(layer)+1)/2)
		for i := 0; i < len(layer); i += 2 {
			left := layer[i]
			right := left // odd layer: duplicate the last node
			if i+1 < len(layer) {
				right = layer[i+1]
			}
			next = append(next, nodeHash(left, right))
		}
		layers = append(layers, next)
		layer = next
	}

	return &Tree{layers: layers}, nil
}

// Root returns the top hash.
func (t *Tree) Root() []byte {
	top := t.layers[len(t.layers)-1]
	return top[0]
}

// LeafCount returns the number of leaves the tree was built over.
func (t *Tree) LeafCount() int {
	return len(t.layers[0])
}

// Proof returns the inclusion proof for the leaf at index. Siblings are
// recorded root-ward; at each layer the index parity decides which side the
// sibling sits on, and the same-side duplication rule applies on odd layers.
func (t *Tree) Proof(index int) (domain.MerkleProof, error) {
	if index < 0 || index >= t.LeafCount() {
		return domain.MerkleProof{}, fmt.Errorf("merkle: leaf index %d out of range [0,%d)", index, t.LeafCount())
	}

	proof := domain.MerkleProof{
		LeafHash:  t.layers[0][index],
		LeafIndex: index,
	}

	idx := index
	for _, layer := range t.layers[:len(t.layers)-1] {
		var sibling []byte
		if idx%2 == 0 {
			if idx+1 < len(layer) {
				sibling = layer[idx+1]
			} else {
				sibling = layer[idx] // duplicated with itself
			}
		} else {
			sibling = layer[idx-1]
		}
		proof.Siblings = append(proof.Siblings, sibling)
		idx /= 2
	}

	return proof, nil
}

// Verify recomputes the root from the proof and compares it to the expected
// root. A false result is a normal outcome, not an error: it means the leaf
// list, its order, or the leaf content has changed since the root was built.
func Verify(proof domain.MerkleProof, root []byte) bool {
	acc := proof.LeafHash
	idx := proof.LeafIndex
	for _, sibling := range proof.Siblings {
		if idx%2 == 0 {
			acc = nodeHash(acc, sibling)
		} else {
			acc = nodeHash(sibling, acc)
		}
		idx /= 2
	}
	return bytes.Equal(acc, root)
}

func leafHash(leaf []byte) []byte {
	sum := sha256.Sum256(leaf)
	return sum[:]
}

func nodeHash(left, right []byte) []byte {
	h := sha256.New()
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}
