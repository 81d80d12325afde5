package room

import "time"

const (
	// DefaultMaxOccupants is the room capacity used when none is configured.
	DefaultMaxOccupants = 10

	// Spawn point given to every player when they join a room.
	DefaultX = 400
	DefaultY = 300
)

// EmptyRoomPolicy decides what happens to a room when its last occupant leaves.
type EmptyRoomPolicy string

const (
	// RetainPolicy keeps empty rooms around so they can be joined again.
	RetainPolicy EmptyRoomPolicy = "retain"
	// DeletePolicy removes a room as soon as it becomes empty.
	DeletePolicy EmptyRoomPolicy = "delete"
)

// Valid reports whether p is a known policy.
func (p EmptyRoomPolicy) Valid() bool {
	return p == RetainPolicy || p == DeletePolicy
}

// PlayerState is what the server knows about one occupant.
type PlayerState struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Room is a snapshot of a room and its occupants.
type Room struct {
	ID         string                 `json:"id"`
	Occupants  map[string]PlayerState `json:"occupants"`
	CreatedAt  time.Time              `json:"created_at"`
	EmptySince *time.Time             `json:"empty_since,omitempty"`
}

// Count returns the number of occupants.
func (r Room) Count() int {
	return len(r.Occupants)
}

// Summary is a compact description of a room used for listings.
type Summary struct {
	ID           string     `json:"id"`
	Occupants    int        `json:"occupants"`
	MaxOccupants int        `json:"max_occupants"`
	CreatedAt    time.Time  `json:"created_at"`
	EmptySince   *time.Time `json:"empty_since,omitempty"`
}

// Removal describes the effect of removing a connection from its room.
type Removal struct {
	RoomID  string
	Count   int
	Deleted bool
}

// Transfer describes a connection moving from one room to another.
type Transfer struct {
	// From is set when the connection left a room to make the move.
	From  *Removal
	To    string
	Count int
}
