package main

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// ---------- helpers ----------

// startTestServer spins up an httptest.Server around a running Game
// and returns the server, its WebSocket URL, and a cleanup func.
func startTestServer(t *testing.T) (*httptest.Server, string, func()) {
	t.Helper()

	auth, err := NewSessionAuth("")
	if err != nil {
		t.Fatalf("session auth: %v", err)
	}
	relay := NewRelay()
	game := NewGame(DefaultMap(), relay, auth, nil, DefaultTotalRounds)
	go game.Run()

	mux := SetupRoutes(relay, game, nil, "http://example.test")
	srv := httptest.NewServer(mux)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	return srv, wsURL, func() {
		srv.Close()
		game.Stop()
	}
}

// dialWS opens a WebSocket connection to the test server.
func dialWS(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial WS: %v", err)
	}
	return conn
}

// joinSession sends a JOIN_REQUEST and returns the accepted response.
func joinSession(t *testing.T, conn *websocket.Conn, name string) JoinResponseMsg {
	t.Helper()
	req := JoinRequestMsg{Type: MsgJoinRequest, Username: name}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write join: %v", err)
	}

	var resp JoinResponseMsg
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read join response: %v", err)
	}
	if resp.Type != MsgJoinResponse {
		t.Fatalf("expected %s first, got %s", MsgJoinResponse, resp.Type)
	}
	if !resp.Success {
		t.Fatalf("join rejected: %s", resp.Error)
	}
	return resp
}

// readUntilState reads frames until a GAME_STATE_UPDATE arrives,
// decoding binary frames as msgpack.
func readUntilState(t *testing.T, conn *websocket.Conn) StateUpdateMsg {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(deadline)
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read WS: %v", err)
		}
		var update StateUpdateMsg
		if msgType == websocket.BinaryMessage {
			if err := msgpack.Unmarshal(raw, &update); err != nil {
				t.Fatalf("msgpack unmarshal: %v", err)
			}
			return update
		}
		if err := json.Unmarshal(raw, &update); err != nil {
			continue
		}
		if update.Type == MsgStateUpdate {
			return update
		}
	}
	t.Fatal("no state update arrived")
	return StateUpdateMsg{}
}

// ---------- tests ----------

func TestJoinOverWebSocket(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	conn := dialWS(t, wsURL)
	defer conn.Close()

	resp := joinSession(t, conn, "Alice")
	if resp.PlayerID == "" {
		t.Error("join response should assign a player id")
	}
	if resp.MapConfig == nil || resp.MapConfig.ArenaSize <= 0 {
		t.Error("join response should carry the map config")
	}
	if len(resp.Skills) == 0 {
		t.Error("join response should carry the skill table")
	}

	// Tick broadcasts should start flowing immediately
	update := readUntilState(t, conn)
	if update.State.GameMode != "WARMUP" {
		t.Errorf("fresh session should be in warmup, got %q", update.State.GameMode)
	}
	found := false
	for _, ps := range update.State.Players {
		if ps.ID == resp.PlayerID && ps.Username == "Alice" {
			found = true
		}
	}
	if !found {
		t.Error("broadcast should contain the joined player")
	}
}

func TestStateRequestOverWebSocket(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	conn := dialWS(t, wsURL)
	defer conn.Close()
	joinSession(t, conn, "Alice")

	if err := conn.WriteJSON(StateRequestMsg{Type: MsgStateRequest}); err != nil {
		t.Fatalf("write state request: %v", err)
	}
	update := readUntilState(t, conn)
	if len(update.State.Players) != 1 {
		t.Errorf("snapshot should contain one player, got %d", len(update.State.Players))
	}
}

func TestBinaryModeNegotiation(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	conn := dialWS(t, wsURL)
	defer conn.Close()
	resp := joinSession(t, conn, "Alice")

	if err := conn.WriteJSON(BinaryModeMsg{Type: MsgBinaryMode}); err != nil {
		t.Fatalf("write binary mode: %v", err)
	}

	// After negotiation, snapshots arrive as msgpack binary frames
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(deadline)
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read WS: %v", err)
		}
		if msgType != websocket.BinaryMessage {
			continue // text frames queued before the switch
		}
		var update StateUpdateMsg
		if err := msgpack.Unmarshal(raw, &update); err != nil {
			t.Fatalf("msgpack unmarshal: %v", err)
		}
		if update.Type != MsgStateUpdate {
			t.Fatalf("binary frame should be a state update, got %q", update.Type)
		}
		for _, ps := range update.State.Players {
			if ps.ID == resp.PlayerID {
				return
			}
		}
		t.Fatal("binary snapshot missing the joined player")
	}
	t.Fatal("no binary frame arrived")
}

func TestMovementInputReflectedInBroadcast(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	conn := dialWS(t, wsURL)
	defer conn.Close()
	resp := joinSession(t, conn, "Alice")

	start := resp.SpawnPosition
	dest := Vec3{X: start.X, Y: 0, Z: start.Z + 3}
	if err := conn.WriteJSON(PlayerInputMsg{Type: MsgPlayerInput, Destination: &dest}); err != nil {
		t.Fatalf("write input: %v", err)
	}

	// Within a few ticks the authoritative position starts moving
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		update := readUntilState(t, conn)
		for _, ps := range update.State.Players {
			if ps.ID == resp.PlayerID && ps.Position.DistanceTo(start) > 0.01 {
				return
			}
		}
	}
	t.Fatal("player never moved toward the requested destination")
}

func TestSecondClientSeesFirst(t *testing.T) {
	_, wsURL, cleanup := startTestServer(t)
	defer cleanup()

	alice := dialWS(t, wsURL)
	defer alice.Close()
	respA := joinSession(t, alice, "Alice")

	bob := dialWS(t, wsURL)
	defer bob.Close()
	respB := joinSession(t, bob, "Bob")

	if respA.PlayerID == respB.PlayerID {
		t.Fatal("players must get distinct ids")
	}
	if respA.SpawnPosition == respB.SpawnPosition {
		t.Error("players must get distinct spawn points")
	}

	update := readUntilState(t, bob)
	seen := map[string]bool{}
	for _, ps := range update.State.Players {
		seen[ps.ID] = true
	}
	if !seen[respA.PlayerID] || !seen[respB.PlayerID] {
		t.Errorf("broadcast should contain both players, got %v", seen)
	}
}

func TestQRCodeEndpoint(t *testing.T) {
	srv, _, cleanup := startTestServer(t)
	defer cleanup()

	resp, err := srv.Client().Get(srv.URL + "/join.png")
	if err != nil {
		t.Fatalf("get join.png: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type: got %q", ct)
	}
}

func TestResultsEndpointsWithoutStore(t *testing.T) {
	srv, _, cleanup := startTestServer(t)
	defer cleanup()

	for _, path := range []string{"/leaderboard", "/matches"} {
		resp, err := srv.Client().Get(srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != 404 {
			t.Errorf("%s without persistence: got %d, want 404", path, resp.StatusCode)
		}
	}
}
