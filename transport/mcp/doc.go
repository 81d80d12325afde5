// Package mcp provides a Model Context Protocol server for administering
// the multiplayer server.
//
// The mcp package implements:
//   - MCP tool definitions for room administration
//   - A thin proxy that turns tool calls into REST API requests
//   - Human-readable formatting of API responses
//
// MCP Tools:
//   - list_rooms: List rooms with their occupancy
//   - get_room: Show a room and each occupant's position
//   - create_room: Open an empty room
//   - delete_room: Close a room, evicting its occupants
//   - server_stats: Room, player and connection totals
//
// Transport Modes:
//   - Stdio: server.ServeStdio(client.GetMCPServer())
//   - HTTP: the server command mounts GetMCPServer().HandleMessage at POST /mcp
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:3000")
//	server.ServeStdio(client.GetMCPServer())
package mcp
