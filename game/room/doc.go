// Package room provides the in-memory room table for the multiplayer server.
//
// The room package implements:
//   - Thread-safe room storage and retrieval
//   - Unique room ID generation
//   - Occupant capacity enforcement
//   - Player position tracking
//   - A connection to room index for constant time lookups
//
// Core Types:
//
// Store is the authoritative table of rooms. It owns every mutation of room
// and player state. Room is a point-in-time copy of a single room handed out
// to callers, so readers never observe a half-applied update.
//
// Room Identifiers:
//
// Rooms are keyed by random (version 4) UUIDs. Connections are identified by
// opaque strings assigned by the transport layer.
//
// Concurrency:
//
// A single read/write lock guards the whole table. Joins, moves and removals
// take the write lock; lookups and listings take the read lock and copy what
// they return.
//
// Usage:
//
//	store := room.NewStore(room.WithMaxOccupants(10))
//
//	id := store.CreateRoom()
//	count, err := store.AddOccupant(id, connID)
//	if errors.Is(err, room.ErrRoomFull) {
//		// tell the client
//	}
//
//	store.UpdatePosition(id, connID, 10, 20)
//	removal, ok := store.RemoveOccupant(connID)
//
// Empty Rooms:
//
// By default rooms stay allocated after their last occupant leaves. The
// DeletePolicy removes them instead, and CleanupEmptyRooms prunes rooms that
// have been empty for longer than a given age.
package room
