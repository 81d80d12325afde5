package protocol

import (
	"encoding/json"
	"testing"

	"github.com/Yquannn/multiplayer-phaser/game/room"
)

func TestDecode(t *testing.T) {
	t.Run("join", func(t *testing.T) {
		env, err := Decode([]byte(`{"event":"joinRoom","data":"abc"}`))
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if env.Event != EventJoinRoom {
			t.Errorf("Expected event %s, got %s", EventJoinRoom, env.Event)
		}
		id, err := env.RoomID()
		if err != nil {
			t.Fatalf("RoomID failed: %v", err)
		}
		if id != "abc" {
			t.Errorf("Expected room id 'abc', got %q", id)
		}
	})

	t.Run("create without data", func(t *testing.T) {
		env, err := Decode([]byte(`{"event":"createRoom"}`))
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if env.Event != EventCreateRoom {
			t.Errorf("Expected event %s, got %s", EventCreateRoom, env.Event)
		}
	})

	t.Run("move", func(t *testing.T) {
		env, err := Decode([]byte(`{"event":"playerMoved","data":{"position":{"x":10.5,"y":-3}}}`))
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		pos, err := env.Move()
		if err != nil {
			t.Fatalf("Move failed: %v", err)
		}
		if pos.X != 10.5 || pos.Y != -3 {
			t.Errorf("Expected (10.5,-3), got (%v,%v)", pos.X, pos.Y)
		}
	})

	t.Run("invalid frames", func(t *testing.T) {
		for _, raw := range []string{`not json`, `{}`, `{"data":"x"}`} {
			if _, err := Decode([]byte(raw)); err == nil {
				t.Errorf("Expected error decoding %q", raw)
			}
		}
	})

	t.Run("invalid payloads", func(t *testing.T) {
		env := Envelope{Event: EventJoinRoom, Data: json.RawMessage(`42`)}
		if _, err := env.RoomID(); err == nil {
			t.Error("Expected error for numeric room id")
		}

		env = Envelope{Event: EventMove, Data: json.RawMessage(`{"x":1,"y":2}`)}
		if _, err := env.Move(); err == nil {
			t.Error("Expected error for movement without position")
		}

		env = Envelope{Event: EventMove}
		if _, err := env.Move(); err == nil {
			t.Error("Expected error for movement without data")
		}
	})
}

func TestMessageEncoding(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"room joined", RoomJoined("r1"), `{"event":"roomJoined","data":"r1"}`},
		{"room not found", RoomNotFound("r2"), `{"event":"roomNotFound","data":"r2"}`},
		{"limit reached", PlayerLimitReached(), `{"event":"playerLimitReached"}`},
		{"zero count", PlayerCountUpdated(0), `{"event":"playerCountUpdated","data":0}`},
		{"moved", PlayerMoved("p1", Position{X: 10, Y: 20}), `{"event":"playerMoved","data":{"playerId":"p1","position":{"x":10,"y":20}}}`},
		{
			"current players",
			CurrentPlayers(map[string]room.PlayerState{"a": {X: 400, Y: 300}}),
			`{"event":"currentPlayers","data":{"a":{"x":400,"y":300}}}`,
		},
		{"empty room", CurrentPlayers(map[string]room.PlayerState{}), `{"event":"currentPlayers","data":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.msg)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, data)
			}
		})
	}
}
