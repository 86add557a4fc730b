package grid

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrMapExists  = errors.New("map already exists")
	ErrUnknownMap = errors.New("unknown map")
)

// Store holds every live map by id. It is owned by the world loop.
type Store struct {
	maps map[string]*Map
}

func NewStore() *Store {
	return &Store{maps: map[string]*Map{}}
}

func (s *Store) Create(id string) (*Map, error) {
	if id == "" {
		return nil, fmt.Errorf("create map: empty id")
	}
	if _, ok := s.maps[id]; ok {
		return nil, fmt.Errorf("create map %q: %w", id, ErrMapExists)
	}
	m := NewMap(id)
	s.maps[id] = m
	return m, nil
}

// Put installs m, replacing any map with the same id.
func (s *Store) Put(m *Map) {
	s.maps[m.ID()] = m
}

func (s *Store) Get(id string) (*Map, bool) {
	m, ok := s.maps[id]
	return m, ok
}

func (s *Store) Exists(id string) bool {
	_, ok := s.maps[id]
	return ok
}

func (s *Store) Delete(id string) bool {
	if _, ok := s.maps[id]; !ok {
		return false
	}
	delete(s.maps, id)
	return true
}

func (s *Store) IDs() []string {
	out := make([]string, 0, len(s.maps))
	for id := range s.maps {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
