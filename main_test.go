package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/Yquannn/multiplayer-phaser/game/config"
	"github.com/Yquannn/multiplayer-phaser/game/coordinator"
	"github.com/Yquannn/multiplayer-phaser/game/room"
	"github.com/Yquannn/multiplayer-phaser/transport/mcp"
)

func TestConstants(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
	if AppName == "" {
		t.Error("AppName should not be empty")
	}
}

func TestNewCommand(t *testing.T) {
	cmd := newCommand()

	if cmd.DefaultCommand != "server" {
		t.Errorf("Expected default command server, got %q", cmd.DefaultCommand)
	}

	want := map[string][]string{
		"server":    {"http"},
		"stdio-mcp": {"mcp-stdio", "mcp"},
		"validate":  nil,
	}
	for _, sub := range cmd.Commands {
		aliases, ok := want[sub.Name]
		if !ok {
			t.Errorf("Unexpected command %s", sub.Name)
			continue
		}
		if strings.Join(sub.Aliases, ",") != strings.Join(aliases, ",") {
			t.Errorf("Command %s: expected aliases %v, got %v", sub.Name, aliases, sub.Aliases)
		}
		delete(want, sub.Name)
	}
	if len(want) != 0 {
		t.Errorf("Missing commands: %v", want)
	}
}

// parseConfig runs the root command's flag parsing with args and returns
// the resulting configuration.
func parseConfig(t *testing.T, args ...string) (config.Config, error) {
	t.Helper()

	cmd := newCommand()
	cmd.Commands = nil
	cmd.DefaultCommand = ""

	var (
		cfg    config.Config
		cfgErr error
	)
	cmd.Action = func(ctx context.Context, c *cli.Command) error {
		cfg, cfgErr = configFromCommand(c)
		return nil
	}

	if err := cmd.Run(context.Background(), append([]string{"multiplayer-phaser"}, args...)); err != nil {
		t.Fatalf("Command failed: %v", err)
	}
	return cfg, cfgErr
}

func TestConfigFromCommand_Defaults(t *testing.T) {
	cfg, err := parseConfig(t)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Rooms.MaxOccupants != room.DefaultMaxOccupants {
		t.Errorf("Expected capacity %d, got %d", room.DefaultMaxOccupants, cfg.Rooms.MaxOccupants)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Expected info logging, got %s", cfg.Logging.Level)
	}
}

func TestConfigFromCommand_FlagsOverride(t *testing.T) {
	cfg, err := parseConfig(t,
		"--port", "9999",
		"--host", "127.0.0.1",
		"--max-occupants", "4",
		"--empty-policy", "delete",
		"--rejoin-policy", "reject",
		"--static-dir", "",
		"--debug",
		"--ngrok",
		"--ngrok-auth", "secret",
		"--ngrok-domain", "game.ngrok.app",
	)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	checks := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"port", cfg.Server.Port, 9999},
		{"host", cfg.Server.Host, "127.0.0.1"},
		{"static dir", cfg.Server.StaticDir, ""},
		{"max occupants", cfg.Rooms.MaxOccupants, 4},
		{"empty policy", cfg.Rooms.EmptyPolicy, "delete"},
		{"rejoin policy", cfg.Rooms.RejoinPolicy, "reject"},
		{"log level", cfg.Logging.Level, "debug"},
		{"ngrok", cfg.Ngrok.Enabled, true},
		{"ngrok auth", cfg.Ngrok.AuthToken, "secret"},
		{"ngrok domain", cfg.Ngrok.Domain, "game.ngrok.app"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, c.got)
		}
	}
}

func TestConfigFromCommand_InvalidFlag(t *testing.T) {
	if _, err := parseConfig(t, "--empty-policy", "forever"); err == nil {
		t.Error("Expected validation error for unknown empty policy")
	}
}

func TestLoopbackURL(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"0.0.0.0", "http://127.0.0.1:3000"},
		{"", "http://127.0.0.1:3000"},
		{"localhost", "http://localhost:3000"},
		{"::1", "http://[::1]:3000"},
	}
	for _, tt := range tests {
		got := loopbackURL(config.ServerConfig{Host: tt.host, Port: 3000})
		if got != tt.want {
			t.Errorf("loopbackURL(%q) = %s, want %s", tt.host, got, tt.want)
		}
	}
}

func TestNewApplication(t *testing.T) {
	cfg := config.Default()
	cfg.Rooms.MaxOccupants = 3
	cfg.Rooms.EmptyPolicy = string(room.DeletePolicy)
	cfg.Rooms.RejoinPolicy = string(coordinator.RejectPolicy)

	app := newApplication(cfg, zap.NewNop())

	if app.store.MaxOccupants() != 3 {
		t.Errorf("Expected capacity 3, got %d", app.store.MaxOccupants())
	}
	stats := app.coordinator.Stats()
	if stats.EmptyPolicy != room.DeletePolicy {
		t.Errorf("Expected delete policy, got %s", stats.EmptyPolicy)
	}
	if stats.RejoinPolicy != coordinator.RejectPolicy {
		t.Errorf("Expected reject policy, got %s", stats.RejoinPolicy)
	}
}

func TestApplicationHandler(t *testing.T) {
	cfg := config.Default()
	cfg.Server.StaticDir = ""
	app := newApplication(cfg, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app.start(ctx)

	// The MCP client proxies back into the same handler.
	srv := httptest.NewUnstartedServer(nil)
	srv.Config.Handler = app.handler(mcp.NewClient("http://" + srv.Listener.Addr().String()))
	srv.Start()
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/rooms", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/rooms failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", resp.StatusCode)
	}

	t.Run("mcp rejects GET", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/mcp")
		if err != nil {
			t.Fatalf("GET /mcp failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("Expected 405, got %d", resp.StatusCode)
		}
	})

	t.Run("mcp initialize", func(t *testing.T) {
		body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"1.0"}}}`
		resp, err := http.Post(srv.URL+"/mcp", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("POST /mcp failed: %v", err)
		}
		defer resp.Body.Close()

		var rpc struct {
			Result struct {
				ServerInfo struct {
					Name string `json:"name"`
				} `json:"serverInfo"`
			} `json:"result"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&rpc); err != nil {
			t.Fatalf("Failed to decode MCP response: %v", err)
		}
		if rpc.Result.ServerInfo.Name != "Multiplayer Room Server" {
			t.Errorf("Unexpected server name %q", rpc.Result.ServerInfo.Name)
		}
	})

	t.Run("mcp tool call", func(t *testing.T) {
		body := `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"server_stats","arguments":{}}}`
		resp, err := http.Post(srv.URL+"/mcp", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("POST /mcp failed: %v", err)
		}
		defer resp.Body.Close()

		var rpc struct {
			Result struct {
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"result"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&rpc); err != nil {
			t.Fatalf("Failed to decode MCP response: %v", err)
		}
		if len(rpc.Result.Content) == 0 || !strings.Contains(rpc.Result.Content[0].Text, "Rooms: 1") {
			t.Errorf("Expected stats text with one room, got %+v", rpc.Result.Content)
		}
	})
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(good, []byte("rooms:\n  max_occupants: 4\n  empty_room_ttl: 5m\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("rooms:\n  rejoin_policy: stay\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("valid", func(t *testing.T) {
		var out bytes.Buffer
		cmd := newCommand()
		cmd.Writer = &out

		if err := cmd.Run(context.Background(), []string{"multiplayer-phaser", "validate", good}); err != nil {
			t.Fatalf("Expected valid config, got %v", err)
		}
		for _, want := range []string{"✅ VALID", "capacity 4", "ttl 5m0s", "All configurations are valid"} {
			if !strings.Contains(out.String(), want) {
				t.Errorf("Expected %q in output:\n%s", want, out.String())
			}
		}
	})

	t.Run("invalid", func(t *testing.T) {
		var out bytes.Buffer
		cmd := newCommand()
		cmd.Writer = &out

		err := cmd.Run(context.Background(), []string{"multiplayer-phaser", "validate", good, bad})
		if err == nil || !strings.Contains(err.Error(), "1 of 2") {
			t.Fatalf("Expected one invalid config, got %v", err)
		}
		if !strings.Contains(out.String(), "rooms.rejoin_policy") {
			t.Errorf("Expected the violation to be reported:\n%s", out.String())
		}
	})
}
