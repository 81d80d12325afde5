package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Yquannn/multiplayer-phaser/api"
	"github.com/Yquannn/multiplayer-phaser/game/coordinator"
	"github.com/Yquannn/multiplayer-phaser/game/protocol"
	"github.com/Yquannn/multiplayer-phaser/game/room"
)

type nopTransport struct{}

func (nopTransport) Send(string, protocol.Message) error            { return nil }
func (nopTransport) Broadcast(string, protocol.Message, ...string) {}
func (nopTransport) JoinGroup(string, string)                      {}
func (nopTransport) LeaveGroup(string, string)                     {}

func callTool(name string, args map[string]interface{}) mcp.CallToolRequest {
	if args == nil {
		args = map[string]interface{}{}
	}
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatal("Expected result, got nil")
	}
	if len(result.Content) == 0 {
		t.Fatal("Expected content in result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatal("Expected text content in result")
	}
	return text.Text
}

// newBackend starts the real REST API over a fresh store.
func newBackend(t *testing.T) (*Client, *room.Store) {
	t.Helper()
	store := room.NewStore()
	coord := coordinator.New(store, nopTransport{})
	server := httptest.NewServer(api.NewServer(coord, nil))
	t.Cleanup(server.Close)
	return NewClient(server.URL), store
}

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:3000/")

	if client == nil {
		t.Fatal("Expected client to be created")
	}
	if client.baseURL != "http://localhost:3000" {
		t.Errorf("Expected trailing slash trimmed, got %s", client.baseURL)
	}
	if client.httpClient == nil {
		t.Error("Expected HTTP client to be initialized")
	}
	if client.GetMCPServer() == nil {
		t.Error("Expected MCP server to be initialized")
	}
}

func TestClient_apiCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/stats" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"rooms": 3})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	var response map[string]int
	if err := client.apiCall(context.Background(), "GET", "/api/stats", nil, &response); err != nil {
		t.Fatalf("apiCall failed: %v", err)
	}
	if response["rooms"] != 3 {
		t.Errorf("Expected rooms 3, got %d", response["rooms"])
	}
}

func TestClient_apiCall_Error(t *testing.T) {
	client := NewClient("http://invalid-url-that-does-not-exist:9999")

	if err := client.apiCall(context.Background(), "GET", "/api/rooms", nil, nil); err == nil {
		t.Error("Expected error for invalid URL")
	}
}

func TestClient_apiCall_HTTPError(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"json error body", `{"error":"room x not found"}`, "room x not found"},
		{"plain body", "Internal Server Error", "API error: 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL)
			err := client.apiCall(context.Background(), "GET", "/api/rooms", nil, nil)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestClient_RoomTools(t *testing.T) {
	client, store := newBackend(t)
	ctx := context.Background()

	result, err := client.handleListRooms(ctx, callTool("list_rooms", nil))
	if err != nil {
		t.Fatalf("list_rooms failed: %v", err)
	}
	if text := resultText(t, result); text != "No rooms." {
		t.Errorf("Expected no rooms, got %q", text)
	}

	result, err = client.handleCreateRoom(ctx, callTool("create_room", nil))
	if err != nil {
		t.Fatalf("create_room failed: %v", err)
	}
	rooms := store.ListRooms()
	if len(rooms) != 1 {
		t.Fatalf("Expected 1 room in store, got %d", len(rooms))
	}
	roomID := rooms[0].ID
	if !strings.Contains(resultText(t, result), roomID) {
		t.Errorf("Expected room ID in result, got %q", resultText(t, result))
	}

	if _, err := store.AddOccupant(roomID, "p1"); err != nil {
		t.Fatalf("Failed to seat player: %v", err)
	}

	result, _ = client.handleListRooms(ctx, callTool("list_rooms", map[string]interface{}{"limit": float64(5)}))
	if text := resultText(t, result); !strings.Contains(text, roomID+": 1/10 players") {
		t.Errorf("Expected occupancy line, got %q", text)
	}

	result, _ = client.handleGetRoom(ctx, callTool("get_room", map[string]interface{}{"room_id": roomID}))
	text := resultText(t, result)
	for _, want := range []string{"Room: " + roomID, "Players: 1", "p1 at (400,300)"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in get_room output, got %q", want, text)
		}
	}

	result, _ = client.handleServerStats(ctx, callTool("server_stats", nil))
	text = resultText(t, result)
	for _, want := range []string{"Rooms: 1", "Players: 1", "Room capacity: 10", "Empty rooms: retain", "Rejoin: leave"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in stats output, got %q", want, text)
		}
	}

	result, _ = client.handleDeleteRoom(ctx, callTool("delete_room", map[string]interface{}{"room_id": roomID}))
	if result.IsError {
		t.Fatalf("delete_room failed: %s", resultText(t, result))
	}
	if store.Count() != 0 {
		t.Errorf("Expected room deleted, %d remain", store.Count())
	}
}

func TestClient_ToolErrors(t *testing.T) {
	client, _ := newBackend(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		args    map[string]interface{}
		wantErr string
	}{
		{"get_room without id", client.handleGetRoom, nil, "room_id is required"},
		{"get_room unknown", client.handleGetRoom, map[string]interface{}{"room_id": "nope"}, "not found"},
		{"delete_room without id", client.handleDeleteRoom, nil, "room_id is required"},
		{"delete_room unknown", client.handleDeleteRoom, map[string]interface{}{"room_id": "nope"}, "not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.handler(ctx, callTool(tt.name, tt.args))
			if err != nil {
				t.Fatalf("Handler returned protocol error: %v", err)
			}
			if !result.IsError {
				t.Error("Expected tool error result")
			}
			if text := resultText(t, result); !strings.Contains(text, tt.wantErr) {
				t.Errorf("Expected %q in error, got %q", tt.wantErr, text)
			}
		})
	}
}

func TestFormatRoomList(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	list := api.RoomList{
		Count: 2,
		Total: 3,
		Rooms: []room.Summary{
			{ID: "full", Occupants: 10, MaxOccupants: 10, CreatedAt: created},
			{ID: "empty", Occupants: 0, MaxOccupants: 10, CreatedAt: created},
		},
	}

	result := formatRoomList(list)

	expected := []string{
		"Rooms (2 of 3):",
		"- full: 10/10 players [FULL]",
		"- empty: 0/10 players [EMPTY]",
		"2026-03-01T12:00:00Z",
	}
	for _, field := range expected {
		if !strings.Contains(result, field) {
			t.Errorf("Expected '%s' in formatted output, got: %s", field, result)
		}
	}
}

func TestFormatRoom_OrdersOccupants(t *testing.T) {
	r := room.Room{
		ID: "r1",
		Occupants: map[string]room.PlayerState{
			"b": {X: 1.5, Y: 2},
			"a": {X: 400, Y: 300},
		},
	}

	result := formatRoom(r)

	first := strings.Index(result, "a at (400,300)")
	second := strings.Index(result, "b at (1.5,2)")
	if first < 0 || second < 0 || first > second {
		t.Errorf("Expected occupants listed by ID, got: %s", result)
	}
}
