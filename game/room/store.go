package room

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrRoomFull      = errors.New("room is full")
	ErrNotAMember    = errors.New("connection is not a member of the room")
	ErrAlreadyInRoom = errors.New("connection is already in a room")
)

// Option configures a Store.
type Option func(*Store)

// WithMaxOccupants sets the room capacity. Values below one are ignored.
func WithMaxOccupants(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxOccupants = n
		}
	}
}

// WithEmptyRoomPolicy sets what happens to rooms whose last occupant leaves.
func WithEmptyRoomPolicy(p EmptyRoomPolicy) Option {
	return func(s *Store) {
		if p.Valid() {
			s.policy = p
		}
	}
}

// WithClock overrides the time source, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

type entry struct {
	id         string
	occupants  map[string]*PlayerState
	createdAt  time.Time
	emptySince time.Time
}

func (e *entry) snapshot() Room {
	r := Room{
		ID:        e.id,
		Occupants: make(map[string]PlayerState, len(e.occupants)),
		CreatedAt: e.createdAt,
	}
	for connID, p := range e.occupants {
		r.Occupants[connID] = *p
	}
	if len(e.occupants) == 0 {
		since := e.emptySince
		r.EmptySince = &since
	}
	return r
}

// Store is the authoritative table of rooms and their occupants.
// All methods are safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]*entry // roomID -> room
	index map[string]string // connID -> roomID

	maxOccupants int
	policy       EmptyRoomPolicy
	now          func() time.Time
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		rooms:        make(map[string]*entry),
		index:        make(map[string]string),
		maxOccupants: DefaultMaxOccupants,
		policy:       RetainPolicy,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxOccupants returns the configured room capacity.
func (s *Store) MaxOccupants() int {
	return s.maxOccupants
}

// Policy returns the configured empty room policy.
func (s *Store) Policy() EmptyRoomPolicy {
	return s.policy
}

// CreateRoom allocates a new empty room and returns its ID.
func (s *Store) CreateRoom() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	for s.rooms[id] != nil {
		id = uuid.NewString()
	}

	now := s.now()
	s.rooms[id] = &entry{
		id:         id,
		occupants:  make(map[string]*PlayerState),
		createdAt:  now,
		emptySince: now,
	}
	return id
}

// GetRoom returns a snapshot of the room with the given ID.
func (s *Store) GetRoom(id string) (Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.rooms[id]
	if !exists {
		return Room{}, ErrRoomNotFound
	}
	return e.snapshot(), nil
}

// AddOccupant places connID in the room at the default spawn point and
// returns the new occupant count.
func (s *Store) AddOccupant(roomID, connID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.rooms[roomID]
	if !exists {
		return 0, ErrRoomNotFound
	}
	if _, member := s.index[connID]; member {
		return 0, ErrAlreadyInRoom
	}
	if len(e.occupants) >= s.maxOccupants {
		return 0, ErrRoomFull
	}

	s.insert(e, connID)
	return len(e.occupants), nil
}

// TransferOccupant moves connID into roomID, leaving whatever room it is in
// first. Nothing changes if the target is missing or full. Transferring into
// the room the connection already occupies returns ErrAlreadyInRoom.
func (s *Store) TransferOccupant(connID, roomID string) (Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.rooms[roomID]
	if !exists {
		return Transfer{}, ErrRoomNotFound
	}
	current, member := s.index[connID]
	if member && current == roomID {
		return Transfer{}, ErrAlreadyInRoom
	}
	if len(e.occupants) >= s.maxOccupants {
		return Transfer{}, ErrRoomFull
	}

	var t Transfer
	if member {
		removal := s.remove(connID)
		t.From = &removal
	}
	s.insert(e, connID)
	t.To = roomID
	t.Count = len(e.occupants)
	return t, nil
}

// UpdatePosition overwrites the stored coordinates of connID. The latest
// write always wins.
func (s *Store) UpdatePosition(roomID, connID string, x, y float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.rooms[roomID]
	if !exists {
		return ErrNotAMember
	}
	p, member := e.occupants[connID]
	if !member {
		return ErrNotAMember
	}
	p.X = x
	p.Y = y
	return nil
}

// RemoveOccupant removes connID from whichever room holds it. The boolean is
// false when the connection was not in any room.
func (s *Store) RemoveOccupant(connID string) (Removal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, member := s.index[connID]; !member {
		return Removal{}, false
	}
	return s.remove(connID), true
}

// FindRoomOf returns the room currently holding connID.
func (s *Store) FindRoomOf(connID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roomID, ok := s.index[connID]
	return roomID, ok
}

// ListRooms returns a summary of every room, oldest first.
func (s *Store) ListRooms() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Summary, 0, len(s.rooms))
	for _, e := range s.rooms {
		sum := Summary{
			ID:           e.id,
			Occupants:    len(e.occupants),
			MaxOccupants: s.maxOccupants,
			CreatedAt:    e.createdAt,
		}
		if len(e.occupants) == 0 {
			since := e.emptySince
			sum.EmptySince = &since
		}
		result = append(result, sum)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// DeleteRoom removes a room and forgets its occupants. The removed
// connection IDs are returned so the caller can notify them.
func (s *Store) DeleteRoom(id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.rooms[id]
	if !exists {
		return nil, ErrRoomNotFound
	}

	evicted := make([]string, 0, len(e.occupants))
	for connID := range e.occupants {
		delete(s.index, connID)
		evicted = append(evicted, connID)
	}
	sort.Strings(evicted)
	delete(s.rooms, id)
	return evicted, nil
}

// CleanupEmptyRooms deletes rooms that have had no occupants for longer than
// maxIdle and returns how many were removed.
func (s *Store) CleanupEmptyRooms(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxIdle)
	removed := 0

	for id, e := range s.rooms {
		if len(e.occupants) == 0 && e.emptySince.Before(cutoff) {
			delete(s.rooms, id)
			removed++
		}
	}

	return removed
}

// Count returns the number of rooms.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// ConnectionCount returns the number of connections seated in a room.
func (s *Store) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// insert must be called with the write lock held.
func (s *Store) insert(e *entry, connID string) {
	e.occupants[connID] = &PlayerState{X: DefaultX, Y: DefaultY}
	e.emptySince = time.Time{}
	s.index[connID] = e.id
}

// remove must be called with the write lock held and connID indexed.
func (s *Store) remove(connID string) Removal {
	roomID := s.index[connID]
	delete(s.index, connID)

	e := s.rooms[roomID]
	delete(e.occupants, connID)

	r := Removal{RoomID: roomID, Count: len(e.occupants)}
	if r.Count == 0 {
		e.emptySince = s.now()
		if s.policy == DeletePolicy {
			delete(s.rooms, roomID)
			r.Deleted = true
		}
	}
	return r
}
