// Package conversation holds the append-only turn history of one chat session.
package conversation

import (
	"errors"
	"fmt"

	"github.com/papercomputeco/chatterbox/pkg/llm"
	"github.com/papercomputeco/chatterbox/pkg/merkle"
)

// ErrSystemTurn is returned when a system directive is appended. The directive
// is injected at request time and never stored.
var ErrSystemTurn = errors.New("system turns are not stored in history")

// Store is an ordered, append-only sequence of turns. Insertion order is
// chronological order. Store does no locking; its owner serializes access.
type Store struct {
	turns []llm.Turn
	head  *merkle.Node
}

// NewStore returns an empty history.
func NewStore() *Store {
	return &Store{}
}

// Append adds turn to the end of the history.
func (s *Store) Append(turn llm.Turn) error {
	if turn.Role == llm.RoleSystem {
		return ErrSystemTurn
	}
	if !turn.Role.Valid() {
		return fmt.Errorf("invalid turn role %q", turn.Role)
	}

	s.turns = append(s.turns, turn)
	s.head = merkle.NewNode(turn, s.head)
	return nil
}

// View returns the current turns without copying. Callers must not mutate the
// returned slice; later appends never write into it.
func (s *Store) View() []llm.Turn {
	return s.turns[:len(s.turns):len(s.turns)]
}

// Len returns the number of stored turns.
func (s *Store) Len() int {
	return len(s.turns)
}

// Last returns the most recent turn, if any.
func (s *Store) Last() (llm.Turn, bool) {
	if len(s.turns) == 0 {
		return llm.Turn{}, false
	}
	return s.turns[len(s.turns)-1], true
}

// Head returns the chain hash of the latest turn, or "" for an empty history.
// Two stores with the same turns in the same order share a head.
func (s *Store) Head() string {
	if s.head == nil {
		return ""
	}
	return s.head.Hash
}
