// Package api provides the HTTP REST API for the multiplayer server.
//
// The api package implements:
//   - Room listing and inspection
//   - Administrative room creation and deletion
//   - Server statistics and health checks
//   - WebSocket upgrade routing
//   - Static file serving for the game client
//
// Endpoints:
//
// Rooms:
//   - GET /api/rooms - List rooms (query: order=asc|desc, limit=N)
//   - POST /api/rooms - Open an empty room
//   - GET /api/rooms/{id} - Get a room and its occupants' positions
//   - DELETE /api/rooms/{id} - Close a room, evicting its occupants
//
// Server:
//   - GET /api/stats - Room, player and connection totals
//   - GET /healthz - Liveness probe
//
// Realtime:
//   - GET /ws - WebSocket upgrade, handed to the hub
//
// Usage:
//
//	srv := api.NewServer(coord, hub, api.WithStaticDir("public"), api.WithLogger(logger))
//	http.ListenAndServe(":3000", srv)
//
// Error Handling:
//
// Errors are returned as JSON with an appropriate HTTP status code:
//
//	{
//	  "error": "room 3f2c... not found"
//	}
package api
