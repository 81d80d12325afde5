package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Yquannn/multiplayer-phaser/game/protocol"
	"github.com/Yquannn/multiplayer-phaser/game/room"
)

var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrBadPayload   = errors.New("malformed payload")
)

// RejoinPolicy decides what happens when a seated client asks for another room.
type RejoinPolicy string

const (
	// LeavePolicy moves the client, leaving its previous room.
	LeavePolicy RejoinPolicy = "leave"
	// RejectPolicy refuses the request with an alreadyInRoom message.
	RejectPolicy RejoinPolicy = "reject"
)

// Valid reports whether p is a known policy.
func (p RejoinPolicy) Valid() bool {
	return p == LeavePolicy || p == RejectPolicy
}

// Transport delivers outbound messages to client connections.
type Transport interface {
	// Send delivers msg to a single connection.
	Send(connID string, msg protocol.Message) error
	// Broadcast delivers msg to every connection in the room's group,
	// skipping the listed connections.
	Broadcast(roomID string, msg protocol.Message, except ...string)
	// JoinGroup adds a connection to a room's group.
	JoinGroup(roomID, connID string)
	// LeaveGroup removes a connection from a room's group.
	LeaveGroup(roomID, connID string)
}

// Stats summarises the coordinator's state.
type Stats struct {
	Rooms        int                  `json:"rooms"`
	Players      int                  `json:"players"`
	MaxOccupants int                  `json:"max_occupants"`
	EmptyPolicy  room.EmptyRoomPolicy `json:"empty_policy"`
	RejoinPolicy RejoinPolicy         `json:"rejoin_policy"`
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRejoinPolicy sets how joins from already seated clients are handled.
func WithRejoinPolicy(p RejoinPolicy) Option {
	return func(c *Coordinator) {
		if p.Valid() {
			c.rejoin = p
		}
	}
}

// Coordinator applies the room rules to inbound client events.
//
// Every operation that changes room membership or positions holds mu from
// the store call through its last outbound message, so the notifications of
// two events never interleave.
type Coordinator struct {
	mu        sync.Mutex
	store     *room.Store
	transport Transport
	rejoin    RejoinPolicy
	logger    *zap.Logger
}

// New creates a Coordinator over the given store and transport.
func New(store *room.Store, transport Transport, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		transport: transport,
		rejoin:    LeavePolicy,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect greets a new connection with its own ID.
func (c *Coordinator) Connect(connID string) {
	c.logger.Info("client connected", zap.String("conn_id", connID))
	c.send(connID, protocol.Connected(connID))
}

// Dispatch routes an inbound envelope to its handler.
func (c *Coordinator) Dispatch(connID string, env protocol.Envelope) error {
	switch env.Event {
	case protocol.EventCreateRoom:
		c.CreateRoom(connID)

	case protocol.EventJoinRoom:
		roomID, err := env.RoomID()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		c.JoinRoom(connID, roomID)

	case protocol.EventMove:
		pos, err := env.Move()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		c.PlayerMoved(connID, pos)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	return nil
}

// CreateRoom allocates a room, seats the requester in it and confirms with
// roomJoined. It returns the new room ID, or "" if the request was refused.
// The creator counts toward the room's capacity, leaving one seat fewer for joiners.
func (c *Coordinator) CreateRoom(connID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if current, seated := c.store.FindRoomOf(connID); seated {
		if c.rejoin == RejectPolicy {
			c.send(connID, protocol.AlreadyInRoom(current))
			return ""
		}
		c.disconnect(connID)
	}

	roomID := c.store.CreateRoom()
	if _, err := c.store.AddOccupant(roomID, connID); err != nil {
		// Only a concurrent join from the same connection can get here.
		c.logger.Warn("failed to seat room creator",
			zap.String("conn_id", connID), zap.String("room_id", roomID), zap.Error(err))
		return ""
	}

	c.transport.JoinGroup(roomID, connID)
	c.send(connID, protocol.RoomJoined(roomID))

	c.logger.Info("room created", zap.String("room_id", roomID), zap.String("conn_id", connID))
	return roomID
}

// JoinRoom seats the requester in an existing room.
//
// On success the whole room receives currentPlayers, the requester receives
// roomJoined, then the whole room receives playerCountUpdated.
func (c *Coordinator) JoinRoom(connID, roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.store.GetRoom(roomID); err != nil {
		c.refuse(connID, roomID, err)
		return
	}

	current, seated := c.store.FindRoomOf(connID)
	if seated && current == roomID {
		c.send(connID, protocol.RoomJoined(roomID))
		return
	}
	if seated && c.rejoin == RejectPolicy {
		c.refuse(connID, current, room.ErrAlreadyInRoom)
		return
	}

	var (
		count int
		from  *room.Removal
		err   error
	)
	if seated {
		var t room.Transfer
		t, err = c.store.TransferOccupant(connID, roomID)
		count, from = t.Count, t.From
	} else {
		count, err = c.store.AddOccupant(roomID, connID)
	}
	if err != nil {
		c.refuse(connID, roomID, err)
		return
	}

	if from != nil {
		c.announceDeparture(connID, *from)
	}

	c.transport.JoinGroup(roomID, connID)
	if snapshot, err := c.store.GetRoom(roomID); err == nil {
		c.transport.Broadcast(roomID, protocol.CurrentPlayers(snapshot.Occupants))
	}
	c.send(connID, protocol.RoomJoined(roomID))
	c.transport.Broadcast(roomID, protocol.PlayerCountUpdated(count))

	c.logger.Info("player joined room",
		zap.String("room_id", roomID), zap.String("conn_id", connID), zap.Int("players", count))
}

// PlayerMoved stores the requester's new position and relays it to the
// other occupants of its room. Moves from clients outside any room are
// dropped.
func (c *Coordinator) PlayerMoved(connID string, pos protocol.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()

	roomID, seated := c.store.FindRoomOf(connID)
	if !seated {
		c.logger.Debug("dropping move from unseated client", zap.String("conn_id", connID))
		return
	}
	if err := c.store.UpdatePosition(roomID, connID, pos.X, pos.Y); err != nil {
		c.logger.Debug("dropping stale move",
			zap.String("conn_id", connID), zap.String("room_id", roomID), zap.Error(err))
		return
	}

	c.transport.Broadcast(roomID, protocol.PlayerMoved(connID, pos), connID)
}

// Disconnect removes the connection from its room, if any, and tells the
// remaining occupants.
func (c *Coordinator) Disconnect(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnect(connID)
}

func (c *Coordinator) disconnect(connID string) {
	removal, seated := c.store.RemoveOccupant(connID)
	if !seated {
		return
	}
	c.announceDeparture(connID, removal)
}

// OpenRoom allocates an empty room without seating anyone in it.
func (c *Coordinator) OpenRoom() string {
	roomID := c.store.CreateRoom()
	c.logger.Info("room opened", zap.String("room_id", roomID))
	return roomID
}

// CloseRoom deletes a room and tells its occupants with roomClosed.
func (c *Coordinator) CloseRoom(roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted, err := c.store.DeleteRoom(roomID)
	if err != nil {
		return err
	}
	for _, connID := range evicted {
		c.transport.LeaveGroup(roomID, connID)
		c.send(connID, protocol.RoomClosed(roomID))
	}

	c.logger.Info("room closed", zap.String("room_id", roomID), zap.Int("evicted", len(evicted)))
	return nil
}

// Room returns a snapshot of one room.
func (c *Coordinator) Room(roomID string) (room.Room, error) {
	return c.store.GetRoom(roomID)
}

// Rooms lists every room.
func (c *Coordinator) Rooms() []room.Summary {
	return c.store.ListRooms()
}

// Stats reports room and player totals.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Rooms:        c.store.Count(),
		Players:      c.store.ConnectionCount(),
		MaxOccupants: c.store.MaxOccupants(),
		EmptyPolicy:  c.store.Policy(),
		RejoinPolicy: c.rejoin,
	}
}

// RunSweeper removes rooms that have been empty for longer than maxIdle,
// checking every interval until ctx is done.
func (c *Coordinator) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			removed := c.store.CleanupEmptyRooms(maxIdle)
			c.mu.Unlock()
			if removed > 0 {
				c.logger.Info("cleaned up empty rooms", zap.Int("removed", removed))
			}
		}
	}
}

func (c *Coordinator) announceDeparture(connID string, removal room.Removal) {
	c.transport.LeaveGroup(removal.RoomID, connID)

	occupants := map[string]room.PlayerState{}
	if snapshot, err := c.store.GetRoom(removal.RoomID); err == nil {
		occupants = snapshot.Occupants
	}
	c.transport.Broadcast(removal.RoomID, protocol.CurrentPlayers(occupants))
	c.transport.Broadcast(removal.RoomID, protocol.PlayerCountUpdated(removal.Count))

	fields := []zap.Field{
		zap.String("room_id", removal.RoomID),
		zap.String("conn_id", connID),
		zap.Int("players", removal.Count),
	}
	if removal.Deleted {
		c.logger.Info("player left room, room deleted", fields...)
		return
	}
	c.logger.Info("player left room", fields...)
}

func (c *Coordinator) refuse(connID, roomID string, err error) {
	var msg protocol.Message
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		msg = protocol.RoomNotFound(roomID)
	case errors.Is(err, room.ErrRoomFull):
		msg = protocol.PlayerLimitReached()
	case errors.Is(err, room.ErrAlreadyInRoom):
		msg = protocol.AlreadyInRoom(roomID)
	default:
		c.logger.Error("unexpected join failure",
			zap.String("conn_id", connID), zap.String("room_id", roomID), zap.Error(err))
		return
	}

	c.logger.Debug("join refused",
		zap.String("conn_id", connID), zap.String("room_id", roomID), zap.Error(err))
	c.send(connID, msg)
}

func (c *Coordinator) send(connID string, msg protocol.Message) {
	if err := c.transport.Send(connID, msg); err != nil {
		c.logger.Debug("failed to send message",
			zap.String("conn_id", connID), zap.String("event", msg.Event), zap.Error(err))
	}
}
