package content

import (
	"sync/atomic"
)

// Store owns the active content tree. Readers take one snapshot per
// operation with Tree; Reload swaps in a complete new tree or nothing.
type Store struct {
	path string
	tree atomic.Pointer[Tree]
}

// NewStore loads the content file at path
func NewStore(path string) (*Store, error) {
	tree, err := Load(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path}
	s.tree.Store(tree)
	return s, nil
}

// NewStoreFromTree wraps an already built tree. Reload reads from path.
func NewStoreFromTree(path string, tree *Tree) *Store {
	s := &Store{path: path}
	s.tree.Store(tree)
	return s
}

// Tree returns the current snapshot
func (s *Store) Tree() *Tree {
	return s.tree.Load()
}

// Path returns the file the store reloads from
func (s *Store) Path() string {
	return s.path
}

// Reload parses the content file again and swaps it in. On failure the
// previous tree stays active and a *LoadError is returned.
func (s *Store) Reload() error {
	tree, err := Load(s.path)
	if err != nil {
		return err
	}
	s.tree.Store(tree)
	return nil
}
