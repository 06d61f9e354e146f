package gallery

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
)

// SnapshotName — имя сохранённой страницы галереи в её папке.
const SnapshotName = "index.html"

// KeywordFunc возвращает подпись из метаданных файла или "".
type KeywordFunc func(path string) string

// LoadCaptions берёт подписи из сохранённой страницы, если она есть, иначе из метаданных файлов.
func LoadCaptions(dir string, listing Listing, keywords KeywordFunc) (Captions, error) {
	f, err := os.Open(filepath.Join(dir, SnapshotName))
	switch {
	case err == nil:
		defer f.Close()
		c, err := ParseSnapshot(f)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", SnapshotName, err)
		}
		return c, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	out := Captions{}
	if keywords == nil {
		return out, nil
	}
	for _, name := range listing.All() {
		if kw := keywords(filepath.Join(dir, name)); kw != "" {
			out[name] = kw
		}
	}
	return out, nil
}

// Store — потокобезопасное хранилище подписей текущей галереи.
type Store struct {
	mu       sync.RWMutex
	captions Captions
}

func NewStore(initial Captions) *Store {
	s := &Store{captions: Captions{}}
	maps.Copy(s.captions, initial)
	return s
}

func (s *Store) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.captions[name]
	return c, ok
}

func (s *Store) Set(name, caption string) {
	s.mu.Lock()
	s.captions[name] = caption
	s.mu.Unlock()
}

// Merge добавляет подписи, перезаписывая существующие.
func (s *Store) Merge(c Captions) {
	s.mu.Lock()
	maps.Copy(s.captions, c)
	s.mu.Unlock()
}

// Snapshot возвращает копию подписей.
func (s *Store) Snapshot() Captions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.captions)
}
