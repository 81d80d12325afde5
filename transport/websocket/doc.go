// Package websocket provides WebSocket transport for the multiplayer server.
//
// The websocket package implements:
//   - Real-time bidirectional communication
//   - Connection identity (one UUID per socket)
//   - Room groups for multicast delivery
//   - Inbound message decoding and dispatch
//   - Connection lifecycle management
//
// Architecture:
//
// The package uses a hub-and-spoke model where a central Hub manages all
// WebSocket connections. Each client connection is handled by a reader and a
// writer goroutine; the hub's Run loop serialises registration and
// unregistration.
//
// Message Protocol:
//
// Every text frame holds exactly one JSON envelope:
//   - Incoming: {"event": "joinRoom", "data": "<room id>"}
//   - Outgoing: {"event": "currentPlayers", "data": {"<conn id>": {"x": 400, "y": 300}}}
//
// Inbound envelopes are handed to a Handler. Outbound delivery goes through
// Send (one connection) and Broadcast (a room group, optionally skipping
// the sender).
//
// Usage:
//
//	hub := websocket.NewHub(websocket.Config{}, logger)
//	coord := coordinator.New(store, hub)
//	hub.SetHandler(coord)
//	go hub.Run(ctx)
//
//	http.HandleFunc("/ws", hub.ServeWS)
//
// Connection Lifecycle:
//
// 1. Client connects and is assigned an ID
// 2. Connection registered with hub, handler told via Connect
// 3. Client sends events, handler dispatches them
// 4. Disconnection removes the client from every group
// 5. Handler told via Disconnect
//
// Back-pressure:
//
// Every client has a buffered send queue. Enqueueing never blocks: a client
// whose queue is full is dropped, so one slow reader cannot stall delivery to
// the rest of its room.
package websocket
