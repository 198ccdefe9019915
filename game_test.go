package main

import (
	"encoding/json"
	"testing"
	"time"
)

// testLink is an in-memory PeerLink capturing delivered frames
type testLink struct {
	id     string
	binary bool
	frames [][]byte
}

func (l *testLink) ID() string       { return l.id }
func (l *testLink) SetID(id string)  { l.id = id }
func (l *testLink) Deliver(d []byte) { l.frames = append(l.frames, d) }
func (l *testLink) DeliverState(text, binary []byte) {
	if l.binary && binary != nil {
		l.frames = append(l.frames, binary)
		return
	}
	l.frames = append(l.frames, text)
}
func (l *testLink) WantsBinary() bool { return l.binary }
func (l *testLink) SetBinary(on bool) { l.binary = on }
func (l *testLink) Close()            {}

func (l *testLink) lastFrame() []byte {
	if len(l.frames) == 0 {
		return nil
	}
	return l.frames[len(l.frames)-1]
}

func newTestGame(t *testing.T, totalRounds int) *Game {
	t.Helper()
	auth, err := NewSessionAuth("")
	if err != nil {
		t.Fatalf("session auth: %v", err)
	}
	return NewGame(DefaultMap(), NewRelay(), auth, nil, totalRounds)
}

func join(t *testing.T, g *Game, link *testLink, name string) string {
	t.Helper()
	g.handleCommand(Command{Peer: link, Msg: &JoinRequestMsg{Type: MsgJoinRequest, Username: name}}, time.Now())

	var resp JoinResponseMsg
	if err := json.Unmarshal(link.lastFrame(), &resp); err != nil {
		t.Fatalf("join response: %v", err)
	}
	if !resp.Success {
		t.Fatalf("join for %s rejected: %s", name, resp.Error)
	}
	return resp.PlayerID
}

func TestJoinAssignsIdentitySpawnAndToken(t *testing.T) {
	g := newTestGame(t, 2)
	link := &testLink{}
	id := join(t, g, link, "Alice")

	if id == "" || link.ID() != id {
		t.Errorf("peer should carry the assigned player id, got %q/%q", id, link.ID())
	}
	p := g.players[id]
	if p == nil {
		t.Fatal("player should be registered")
	}
	if p.Pos != g.spawns.Point(p.SpawnIndex) {
		t.Error("player should spawn at its claimed point")
	}

	var resp JoinResponseMsg
	json.Unmarshal(link.lastFrame(), &resp)
	if resp.MapConfig == nil || len(resp.Skills) != 4 {
		t.Error("join response should carry map config and the skill table")
	}
	if resp.RejoinToken == "" {
		t.Error("join response should carry a rejoin token")
	}

	// The token reclaims the same id after a disconnect
	g.handleCommand(Command{Peer: link, Closed: true}, time.Now())
	relink := &testLink{}
	g.handleCommand(Command{Peer: relink, Msg: &JoinRequestMsg{
		Type: MsgJoinRequest, Username: "Alice", RejoinToken: resp.RejoinToken,
	}}, time.Now())
	var resp2 JoinResponseMsg
	json.Unmarshal(relink.lastFrame(), &resp2)
	if !resp2.Success || resp2.PlayerID != id {
		t.Errorf("rejoin should reclaim %q, got %q (success=%v)", id, resp2.PlayerID, resp2.Success)
	}
}

func TestRepeatJoinOnSamePeerRejected(t *testing.T) {
	g := newTestGame(t, 2)
	link := &testLink{}
	first := join(t, g, link, "Alice")

	g.handleCommand(Command{Peer: link, Msg: &JoinRequestMsg{Type: MsgJoinRequest, Username: "Alice2"}}, time.Now())
	var resp JoinResponseMsg
	json.Unmarshal(link.lastFrame(), &resp)
	if resp.Success {
		t.Fatal("second join on the same peer must be rejected")
	}
	if len(g.players) != 1 || g.spawns.Claimed() != 1 {
		t.Fatalf("repeat join must not add entities, got %d players / %d claims", len(g.players), g.spawns.Claimed())
	}

	// The one entity still belongs to the peer and leaves with it
	g.handleCommand(Command{Peer: link, Closed: true}, time.Now())
	if _, ok := g.players[first]; ok {
		t.Error("entity should be removed when its peer disconnects")
	}
	if g.spawns.Claimed() != 0 {
		t.Errorf("all spawn claims should be released, %d still held", g.spawns.Claimed())
	}
}

func TestJoinRejectedWithWrongPassword(t *testing.T) {
	auth, _ := NewSessionAuth("sesame")
	g := NewGame(DefaultMap(), NewRelay(), auth, nil, 2)

	link := &testLink{}
	g.handleCommand(Command{Peer: link, Msg: &JoinRequestMsg{Type: MsgJoinRequest, Password: "wrong"}}, time.Now())
	var resp JoinResponseMsg
	json.Unmarshal(link.lastFrame(), &resp)
	if resp.Success {
		t.Error("wrong password must be rejected")
	}

	ok := &testLink{}
	g.handleCommand(Command{Peer: ok, Msg: &JoinRequestMsg{Type: MsgJoinRequest, Password: "sesame"}}, time.Now())
	json.Unmarshal(ok.lastFrame(), &resp)
	if !resp.Success {
		t.Errorf("correct password should be accepted: %s", resp.Error)
	}
}

func TestStartGameRequiresHostAndMinPlayers(t *testing.T) {
	g := newTestGame(t, 2)
	now := time.Now()

	host := &testLink{}
	g.SetHostLink(host)
	join(t, g, host, "Host")

	// Below the minimum player count the start is ignored
	g.handleCommand(Command{Peer: host, Msg: &StartGameMsg{Type: MsgStartGame}}, now)
	if g.match.Phase != PhaseWarmup {
		t.Fatalf("start with one player must leave warmup untouched, got %v", g.match.Phase)
	}

	guest := &testLink{}
	join(t, g, guest, "Guest")

	// Non-host start requests are ignored outright
	g.handleCommand(Command{Peer: guest, Msg: &StartGameMsg{Type: MsgStartGame}}, now)
	if g.match.Phase != PhaseWarmup {
		t.Fatal("guest must not be able to start the match")
	}

	g.handleCommand(Command{Peer: host, Msg: &StartGameMsg{Type: MsgStartGame}}, now)
	if g.match.Phase != PhaseFreezeTime {
		t.Fatalf("host start with enough players should enter freeze time, got %v", g.match.Phase)
	}
	for _, p := range g.order {
		if !p.Frozen || p.Pos != g.spawns.Point(p.SpawnIndex) {
			t.Error("freeze entry should reset and freeze every player")
		}
	}
}

func startRound(t *testing.T, g *Game, host *testLink, now time.Time) time.Time {
	t.Helper()
	g.handleCommand(Command{Peer: host, Msg: &StartGameMsg{Type: MsgStartGame}}, now)
	if g.match.Phase != PhaseFreezeTime {
		t.Fatalf("expected freeze time, got %v", g.match.Phase)
	}
	now = now.Add(FreezeDuration + time.Millisecond)
	g.tick(now)
	if g.match.Phase != PhaseRound {
		t.Fatalf("freeze expiry should enter the round, got %v", g.match.Phase)
	}
	return now
}

func TestRoundTransitionCountsWinnerExactlyOnce(t *testing.T) {
	g := newTestGame(t, 3)
	now := time.Now()

	host := &testLink{}
	g.SetHostLink(host)
	join(t, g, host, "Host")
	a := &testLink{}
	idA := join(t, g, a, "Alice")
	b := &testLink{}
	idB := join(t, g, b, "Bob")

	now = startRound(t, g, host, now)

	g.players[idA].TakeDamage(1000, now)
	g.players[idB].TakeDamage(1000, now)
	survivor := g.players[g.hostPlayerID]

	now = now.Add(TickDuration)
	g.tick(now)
	if g.match.Phase != PhaseRoundEnd {
		t.Fatalf("two dead of three should end the round, got %v", g.match.Phase)
	}
	if g.match.RoundWinnerID != survivor.ID {
		t.Errorf("round winner should be the survivor, got %q", g.match.RoundWinnerID)
	}
	if g.match.CurrentRound != 1 {
		t.Errorf("round counter should advance to 1, got %d", g.match.CurrentRound)
	}
	if survivor.RoundsSurvived != 1 {
		t.Errorf("survivor stat should be 1, got %d", survivor.RoundsSurvived)
	}

	// Repeated ticks inside ROUND_END must not double-count
	g.tick(now.Add(TickDuration))
	g.tick(now.Add(2 * TickDuration))
	if g.match.CurrentRound != 1 || survivor.RoundsSurvived != 1 {
		t.Error("round end must be idempotent across ticks")
	}
}

func TestGameOverAndRestart(t *testing.T) {
	g := newTestGame(t, 1)
	now := time.Now()

	host := &testLink{}
	g.SetHostLink(host)
	join(t, g, host, "Host")
	guest := &testLink{}
	idG := join(t, g, guest, "Guest")

	now = startRound(t, g, host, now)
	g.players[idG].TakeDamage(1000, now)
	now = now.Add(TickDuration)
	g.tick(now)

	if g.match.Phase != PhaseGameOver {
		t.Fatalf("single-round match should be over, got %v", g.match.Phase)
	}
	if g.match.WinnerID != g.hostPlayerID {
		t.Errorf("match winner should be the host, got %q", g.match.WinnerID)
	}

	// Restart is host-only
	g.handleCommand(Command{Peer: guest, Msg: &RestartGameMsg{Type: MsgRestartGame}}, now)
	if g.match.Phase != PhaseGameOver {
		t.Fatal("guest restart must be ignored")
	}

	g.handleCommand(Command{Peer: host, Msg: &RestartGameMsg{Type: MsgRestartGame}}, now)
	if g.match.Phase != PhaseWarmup || g.match.CurrentRound != 0 {
		t.Fatalf("restart should reset to warmup round 0, got %v/%d", g.match.Phase, g.match.CurrentRound)
	}
	for _, p := range g.order {
		if p.Kills != 0 || p.Deaths != 0 || p.RoundsSurvived != 0 {
			t.Error("restart should zero all player stats")
		}
		if !p.Alive || p.Frozen {
			t.Error("restart should leave everyone alive and unfrozen")
		}
	}
}

func TestSkillRequestSpawnsMissileOncePerCooldown(t *testing.T) {
	g := newTestGame(t, 2)
	now := time.Now()
	link := &testLink{}
	join(t, g, link, "Alice")

	req := &SkillRequestMsg{Type: MsgSkillRequest, SkillType: SkillMissile, Target: &Vec3{X: 5}}
	g.handleCommand(Command{Peer: link, Msg: req}, now)
	if len(g.missiles) != 1 {
		t.Fatalf("expected one missile, got %d", len(g.missiles))
	}

	// Cooldown rejection is silent: no missile, no error traffic
	g.handleCommand(Command{Peer: link, Msg: req}, now.Add(time.Second))
	if len(g.missiles) != 1 {
		t.Errorf("cooldown rejection must not spawn, got %d", len(g.missiles))
	}
}

func TestMissileKillCreditsShooter(t *testing.T) {
	g := newTestGame(t, 2)
	now := time.Now()
	a := &testLink{}
	idA := join(t, g, a, "Alice")
	b := &testLink{}
	idB := join(t, g, b, "Bob")

	shooter := g.players[idA]
	victim := g.players[idB]
	victim.HP = MissileDamage // exactly lethal
	victim.Pos = shooter.Pos.Add(Vec3{X: 3})

	aim := victim.Pos
	ms := shooter.TryMissile(aim, now, g.order)
	if ms == nil {
		t.Fatal("missile should spawn")
	}
	g.missiles = append(g.missiles, ms)

	for i := 0; i < TickRate && victim.Alive; i++ {
		g.updateMissiles(TickDuration.Seconds(), now)
	}
	if victim.Alive {
		t.Fatal("victim should die to the missile")
	}
	if shooter.Kills != 1 {
		t.Errorf("shooter should be credited one kill, got %d", shooter.Kills)
	}
	if victim.Deaths != 1 {
		t.Errorf("victim should record one death, got %d", victim.Deaths)
	}
	if len(g.missiles) != 0 {
		t.Error("spent missile should be removed from the registry")
	}
}

func TestDisconnectReleasesClaimAndNotifies(t *testing.T) {
	g := newTestGame(t, 2)
	a := &testLink{}
	join(t, g, a, "Alice")
	b := &testLink{}
	idB := join(t, g, b, "Bob")

	claimed := g.spawns.Claimed()
	g.handleCommand(Command{Peer: b, Closed: true}, time.Now())

	if _, ok := g.players[idB]; ok {
		t.Error("disconnected player should be removed")
	}
	if g.spawns.Claimed() != claimed-1 {
		t.Error("disconnect should release the spawn claim")
	}

	var died PlayerDiedMsg
	if err := json.Unmarshal(a.lastFrame(), &died); err != nil || died.Type != MsgPlayerDied {
		t.Fatalf("remaining peers should get a death notice, got %s", a.lastFrame())
	}
	if died.ID != idB {
		t.Errorf("notice should name the leaver, got %q", died.ID)
	}
}

func TestStateRequestReturnsFullSnapshot(t *testing.T) {
	g := newTestGame(t, 2)
	link := &testLink{}
	id := join(t, g, link, "Alice")

	g.handleCommand(Command{Peer: link, Msg: &StateRequestMsg{Type: MsgStateRequest}}, time.Now())

	var update StateUpdateMsg
	if err := json.Unmarshal(link.lastFrame(), &update); err != nil {
		t.Fatalf("state update: %v", err)
	}
	if update.Type != MsgStateUpdate {
		t.Fatalf("expected %s, got %s", MsgStateUpdate, update.Type)
	}
	if len(update.State.Players) != 1 || update.State.Players[0].ID != id {
		t.Errorf("snapshot should contain the joined player, got %+v", update.State.Players)
	}
	if update.State.GameMode != "WARMUP" {
		t.Errorf("expected WARMUP mode, got %q", update.State.GameMode)
	}
}

func TestMidMatchJoinerSpectatesUntilNextFreeze(t *testing.T) {
	g := newTestGame(t, 3)
	now := time.Now()
	host := &testLink{}
	g.SetHostLink(host)
	join(t, g, host, "Host")
	guest := &testLink{}
	join(t, g, guest, "Guest")

	now = startRound(t, g, host, now)

	late := &testLink{}
	idLate := join(t, g, late, "Late")
	if g.players[idLate].Alive {
		t.Error("mid-match joiner should arrive dead")
	}

	// The next freeze time resurrects everyone at their spawns
	g.beginFreeze(now)
	if !g.players[idLate].Alive {
		t.Error("freeze entry should resurrect the late joiner")
	}
}

func TestWarmupAutoRespawn(t *testing.T) {
	g := newTestGame(t, 2)
	now := time.Now()
	link := &testLink{}
	id := join(t, g, link, "Alice")

	p := g.players[id]
	p.TakeDamage(1000, now)
	if p.Alive {
		t.Fatal("player should be dead")
	}

	g.tick(now.Add(time.Second))
	if p.Alive {
		t.Error("respawn should wait out the delay")
	}
	g.tick(now.Add(WarmupRespawnDelay + time.Second))
	if !p.Alive {
		t.Error("warmup should auto-respawn after the delay")
	}
	if p.Pos != g.spawns.Point(p.SpawnIndex) {
		t.Error("respawn should reuse the claimed spawn point")
	}
}

func TestPendingInputConsumedOncePerTick(t *testing.T) {
	g := newTestGame(t, 2)
	now := time.Now()
	link := &testLink{}
	id := join(t, g, link, "Alice")
	p := g.players[id]

	dest := Vec3{X: p.Pos.X + 3, Z: p.Pos.Z}
	g.handleCommand(Command{Peer: link, Msg: &PlayerInputMsg{Type: MsgPlayerInput, Destination: &dest}}, now)
	if p.PendingInput == nil {
		t.Fatal("input should buffer on the player")
	}

	g.tick(now)
	if p.PendingInput != nil {
		t.Error("tick should consume and clear the pending input")
	}
	if p.Dest == nil {
		t.Error("consumed input should set the movement target")
	}

	// stopMovement clears it again
	g.handleCommand(Command{Peer: link, Msg: &PlayerInputMsg{Type: MsgPlayerInput, StopMovement: true}}, now)
	g.tick(now.Add(TickDuration))
	if p.Dest != nil {
		t.Error("stop request should clear the movement target")
	}
}

func TestLoopbackPeerUsesIdenticalInboundPath(t *testing.T) {
	g := newTestGame(t, 2)
	local := NewLoopbackPeer(g.relay)
	g.SetHostLink(local)

	if err := local.Request(JoinRequestMsg{Type: MsgJoinRequest, Username: "Host"}); err != nil {
		t.Fatalf("loopback request: %v", err)
	}
	cmd := <-g.relay.Commands()
	g.handleCommand(cmd, time.Now())

	if g.hostPlayerID == "" {
		t.Fatal("host player should be joined through the queue")
	}
	var resp JoinResponseMsg
	select {
	case raw := <-local.Out():
		if err := json.Unmarshal(raw, &resp); err != nil || !resp.Success {
			t.Fatalf("loopback join response invalid: %s", raw)
		}
	default:
		t.Fatal("loopback peer should receive the join response")
	}
}
