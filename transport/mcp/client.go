package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Yquannn/multiplayer-phaser/api"
	"github.com/Yquannn/multiplayer-phaser/game/room"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Multiplayer Room Server",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Multiplayer Room Server - MCP Interface

This is a thin client that proxies all requests to the REST API server.
Players connect over WebSocket and move around inside rooms of up to 10 occupants.
These tools let you inspect and administer those rooms.

AVAILABLE TOOLS:
- list_rooms: List every room with its occupancy
- get_room: Show one room and the position of each occupant
- create_room: Open a new empty room players can join
- delete_room: Close a room, evicting its occupants
- server_stats: Room, player and connection totals`),
	)

	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_rooms",
		Description: "List all rooms with their occupancy",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "number",
					"description": "Maximum number of rooms to return (optional)",
				},
			},
		},
	}, c.handleListRooms)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_room",
		Description: "Get a room and the position of every occupant",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"room_id": map[string]interface{}{
					"type":        "string",
					"description": "Room ID to retrieve",
				},
			},
			Required: []string{"room_id"},
		},
	}, c.handleGetRoom)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_room",
		Description: "Open a new empty room",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleCreateRoom)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "delete_room",
		Description: "Close a room; its occupants are told with roomClosed",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"room_id": map[string]interface{}{
					"type":        "string",
					"description": "Room ID to close",
				},
			},
			Required: []string{"room_id"},
		},
	}, c.handleDeleteRoom)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "server_stats",
		Description: "Get room, player and connection totals",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleServerStats)
}

// GetMCPServer returns the underlying MCP server
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// apiCall makes an HTTP request to the REST API
func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	endpoint := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func stringArg(request mcp.CallToolRequest, name string) string {
	args, _ := request.Params.Arguments.(map[string]interface{})
	value, _ := args[name].(string)
	return value
}

func (c *Client) handleListRooms(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := "/api/rooms"
	args, _ := request.Params.Arguments.(map[string]interface{})
	if limit, ok := args["limit"].(float64); ok && limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, int(limit))
	}

	var list api.RoomList
	if err := c.apiCall(ctx, "GET", path, nil, &list); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatRoomList(list)), nil
}

func (c *Client) handleGetRoom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	roomID := stringArg(request, "room_id")
	if roomID == "" {
		return mcp.NewToolResultError("room_id is required"), nil
	}

	var r room.Room
	if err := c.apiCall(ctx, "GET", "/api/rooms/"+url.PathEscape(roomID), nil, &r); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatRoom(r)), nil
}

func (c *Client) handleCreateRoom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var r room.Room
	if err := c.apiCall(ctx, "POST", "/api/rooms", nil, &r); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Room created: %s\nPlayers can join it by sending joinRoom with this ID.", r.ID)), nil
}

func (c *Client) handleDeleteRoom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	roomID := stringArg(request, "room_id")
	if roomID == "" {
		return mcp.NewToolResultError("room_id is required"), nil
	}

	var resp map[string]string
	if err := c.apiCall(ctx, "DELETE", "/api/rooms/"+url.PathEscape(roomID), nil, &resp); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(resp["message"]), nil
}

func (c *Client) handleServerStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var stats api.StatsResponse
	if err := c.apiCall(ctx, "GET", "/api/stats", nil, &stats); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatStats(stats)), nil
}

func formatRoomList(list api.RoomList) string {
	if len(list.Rooms) == 0 {
		return "No rooms."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Rooms (%d of %d):\n", list.Count, list.Total)
	for _, r := range list.Rooms {
		status := ""
		switch {
		case r.Occupants >= r.MaxOccupants:
			status = " [FULL]"
		case r.Occupants == 0:
			status = " [EMPTY]"
		}
		fmt.Fprintf(&b, "- %s: %d/%d players%s (created %s)\n",
			r.ID, r.Occupants, r.MaxOccupants, status, r.CreatedAt.Format(time.RFC3339))
	}
	return b.String()
}

func formatRoom(r room.Room) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Room: %s\n", r.ID)
	fmt.Fprintf(&b, "Created: %s\n", r.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Players: %d\n", r.Count())
	if r.EmptySince != nil && r.Count() == 0 {
		fmt.Fprintf(&b, "Empty since: %s\n", r.EmptySince.Format(time.RFC3339))
	}

	ids := make([]string, 0, len(r.Occupants))
	for id := range r.Occupants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		pos := r.Occupants[id]
		fmt.Fprintf(&b, "  %s at (%g,%g)\n", id, pos.X, pos.Y)
	}
	return b.String()
}

func formatStats(s api.StatsResponse) string {
	return fmt.Sprintf("Rooms: %d\nPlayers: %d\nConnections: %d\nRoom capacity: %d\nEmpty rooms: %s\nRejoin: %s",
		s.Rooms, s.Players, s.Connections, s.MaxOccupants, s.EmptyPolicy, s.RejoinPolicy)
}
