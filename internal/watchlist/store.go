package watchlist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var (
	// ErrAlreadyWatched indicates the product key is already tracked.
	ErrAlreadyWatched = errors.New("watchlist: product already watched")
	// ErrNotWatched indicates the product key is not tracked.
	ErrNotWatched = errors.New("watchlist: product not watched")
)

// Store defines persistence for the watch set. Load of absent state
// returns an empty watchlist; Save replaces the whole document.
type Store interface {
	Load() (*Watchlist, error)
	Save(list *Watchlist) error
	Add(key string, entry *Entry) error
	Remove(key string) (*Entry, error)
}

// FileStore persists the watchlist as a single human-readable JSON
// document. The mutex serialises load+save transactions within the
// process; concurrent processes are last-writer-wins.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore builds a store rooted at the given file path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the persisted watchlist. A missing file is a valid empty
// state, not an error.
func (s *FileStore) Load() (*Watchlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileStore) load() (*Watchlist, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(), nil
		}
		return nil, fmt.Errorf("read watchlist: %w", err)
	}

	var list Watchlist
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode watchlist: %w", err)
	}
	if list.Games == nil {
		list.Games = make(map[string]*Entry)
	}
	if list.Version == 0 {
		list.Version = 1
	}
	return &list, nil
}

// Save atomically replaces the persisted document with the snapshot.
func (s *FileStore) Save(list *Watchlist) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(list)
}

func (s *FileStore) save(list *Watchlist) error {
	dir := filepath.Dir(s.path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create watchlist dir: %w", err)
		}
	}

	raw, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("encode watchlist: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".watchlist-*.json")
	if err != nil {
		return fmt.Errorf("create temp watchlist: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write watchlist: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close watchlist: %w", err)
	}

	// Rename within the same directory so the replace is atomic.
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace watchlist: %w", err)
	}
	return nil
}

// Add inserts a new entry as one load+save transaction.
func (s *FileStore) Add(key string, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load()
	if err != nil {
		return err
	}
	if _, exists := list.Games[key]; exists {
		return ErrAlreadyWatched
	}
	list.Games[key] = entry
	return s.save(list)
}

// Remove deletes an entry as one load+save transaction and returns the
// removed entry.
func (s *FileStore) Remove(key string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load()
	if err != nil {
		return nil, err
	}
	entry, exists := list.Games[key]
	if !exists {
		return nil, ErrNotWatched
	}
	delete(list.Games, key)
	if err := s.save(list); err != nil {
		return nil, err
	}
	return entry, nil
}

var _ Store = (*FileStore)(nil)
