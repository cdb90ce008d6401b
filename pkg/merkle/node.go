// Package merkle chains conversation turns into a content-addressed hash list.
// A turn's hash covers its content and its parent's hash, so the head hash
// identifies the entire history up to that point.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/papercomputeco/chatterbox/pkg/llm"
)

// Node represents a single content-addressed turn in the chain
type Node struct {
	// Hash is the content-addressed identifier (SHA-256, hex-encoded)
	Hash string `json:"hash"`

	// ParentHash links to the previous turn's hash.
	// This will be nil for the first turn of a conversation.
	ParentHash *string `json:"parent_hash"`

	// Turn is the hashed conversation turn
	Turn llm.Turn `json:"turn"`
}

// input is the canonical hashing form of a node.
type input struct {
	Parent string   `json:"parent,omitempty"`
	Turn   llm.Turn `json:"turn"`
}

// NewNode creates a new node with the computed hash for the provided turn
func NewNode(turn llm.Turn, parent *Node) *Node {
	n := &Node{
		Turn: turn,
	}

	if parent != nil {
		n.ParentHash = &parent.Hash
	}

	n.Hash = n.computeHash()
	return n
}

// Verify recomputes the node's hash and reports whether it still matches.
func (n *Node) Verify() bool {
	return n.Hash == n.computeHash()
}

func (n *Node) computeHash() string {
	i := &input{
		Turn: n.Turn,
	}

	if n.ParentHash != nil {
		i.Parent = *n.ParentHash
	}

	// Struct field order makes the JSON encoding deterministic
	data, err := json.Marshal(i)
	if err != nil {
		panic("failed to marshal hash input: " + err.Error())
	}

	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
