package main

import (
	"encoding/json"
	"log"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	TickRate     = 32 // simulation ticks per second
	TickDuration = time.Second / TickRate
)

// Game is the authoritative simulation for one hosted session. A
// single goroutine owns all entity state: it alternates between the
// fixed-rate tick and commands drained from the relay queue, so no two
// mutations ever run concurrently and the engine needs no locks.
type Game struct {
	SessionID string

	mapCfg *MapConfig
	relay  *Relay
	auth   *SessionAuth
	store  *Store // nil when hosting without persistence

	match  *Match
	spawns *SpawnClaims

	players  map[string]*Player
	order    []*Player // registration order, drives hit iteration
	missiles []*Missile
	beams    []*LaserBeam

	// hostLink identifies the hosting player's own loopback peer;
	// START_GAME/RESTART_GAME from anyone else are ignored.
	hostLink     PeerLink
	hostPlayerID string

	matchStart time.Time
	stop       chan struct{}
}

// NewGame creates a session around a validated map config
func NewGame(mapCfg *MapConfig, relay *Relay, auth *SessionAuth, store *Store, totalRounds int) *Game {
	return &Game{
		SessionID: NewSessionID(),
		mapCfg:    mapCfg,
		relay:     relay,
		auth:      auth,
		store:     store,
		match:     NewMatch(totalRounds),
		spawns:    NewSpawnClaims(mapCfg.SpawnPoints),
		players:   make(map[string]*Player),
		stop:      make(chan struct{}),
	}
}

// SetHostLink marks the loopback peer whose joined player gets host
// privileges. Must be called before Run.
func (g *Game) SetHostLink(link PeerLink) {
	g.hostLink = link
}

// Run drives the simulation until Stop
func (g *Game) Run() {
	ticker := time.NewTicker(TickDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.tick(time.Now())
		case cmd := <-g.relay.Commands():
			g.handleCommand(cmd, time.Now())
		case <-g.stop:
			return
		}
	}
}

// Stop terminates the simulation loop
func (g *Game) Stop() {
	close(g.stop)
}

// handleCommand applies one inbound command between ticks. Validation
// always runs against current state, so delayed or duplicated requests
// are rejected instead of corrupting anything.
func (g *Game) handleCommand(cmd Command, now time.Time) {
	if cmd.Closed {
		g.handleDisconnect(cmd.Peer)
		return
	}

	switch msg := cmd.Msg.(type) {
	case *JoinRequestMsg:
		g.handleJoin(cmd.Peer, msg)
	case *PlayerInputMsg:
		if p := g.players[cmd.Peer.ID()]; p != nil {
			p.PendingInput = msg // latest unconsumed input wins
		}
	case *SkillRequestMsg:
		g.handleSkill(cmd.Peer.ID(), msg, now)
	case *StateRequestMsg:
		if data, err := json.Marshal(g.stateUpdate(now)); err == nil {
			cmd.Peer.Deliver(data)
		}
	case *StartGameMsg:
		g.handleStart(cmd.Peer, now)
	case *RestartGameMsg:
		g.handleRestart(cmd.Peer)
	case *BinaryModeMsg:
		cmd.Peer.SetBinary(true)
	}
}

func (g *Game) handleJoin(peer PeerLink, msg *JoinRequestMsg) {
	reject := func(reason string) {
		data, _ := json.Marshal(JoinResponseMsg{Type: MsgJoinResponse, Error: reason})
		peer.Deliver(data)
	}

	// A peer carries at most one player; a repeat join on the same
	// connection would orphan the first entity on disconnect.
	if peer.ID() != "" {
		reject("already joined")
		return
	}

	if !g.auth.CheckPassword(msg.Password) {
		reject("wrong password")
		return
	}

	id := ""
	if msg.RejoinToken != "" {
		claimed, err := g.auth.ValidateRejoinToken(msg.RejoinToken, g.SessionID)
		if err != nil {
			reject("invalid rejoin token")
			return
		}
		id = claimed
	} else if msg.PlayerID != "" {
		id = msg.PlayerID
	}
	if id == "" {
		id = GenerateID(8)
	}
	if _, taken := g.players[id]; taken {
		reject("player id in use")
		return
	}

	idx, ok := g.spawns.Claim(id)
	if !ok {
		reject("session full")
		return
	}

	name := msg.Username
	if name == "" {
		name = "Player"
	}
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}

	p := NewPlayer(id, name, idx, g.spawns.Point(idx))
	p.Avatar = msg.Avatar
	if g.match.Phase != PhaseWarmup {
		// Mid-match joiners spectate dead until the next freeze time
		// resurrects everyone at their spawns.
		p.Alive = false
		p.HP = 0
	}

	g.players[id] = p
	g.order = append(g.order, p)
	peer.SetID(id)
	g.relay.Register(id, peer)
	if peer == g.hostLink {
		g.hostPlayerID = id
	}

	token, err := g.auth.IssueRejoinToken(id, g.SessionID)
	if err != nil {
		log.Printf("rejoin token: %v", err)
	}
	resp := JoinResponseMsg{
		Type:          MsgJoinResponse,
		Success:       true,
		MapConfig:     g.mapCfg,
		PlayerID:      id,
		SpawnPosition: p.Pos,
		RejoinToken:   token,
		Skills:        SkillTable,
	}
	if data, err := json.Marshal(resp); err == nil {
		peer.Deliver(data)
	}
	log.Printf("player %s (%s) joined session %s", name, id, g.SessionID)
}

func (g *Game) handleDisconnect(peer PeerLink) {
	id := peer.ID()
	if id == "" {
		return
	}
	if _, ok := g.players[id]; !ok {
		return
	}

	delete(g.players, id)
	for i, p := range g.order {
		if p.ID == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	g.spawns.Release(id)
	g.relay.Unregister(id)

	data, _ := json.Marshal(PlayerDiedMsg{Type: MsgPlayerDied, ID: id})
	g.relay.Broadcast(data)
	log.Printf("player %s left session %s", id, g.SessionID)
}

// handleSkill routes a skill request to the matching ability attempt.
// Failures are silent; the client infers rejection from an unchanged
// cooldown in the next snapshot.
func (g *Game) handleSkill(playerID string, msg *SkillRequestMsg, now time.Time) {
	p, ok := g.players[playerID]
	if !ok || !g.match.InputAllowed() {
		return
	}

	switch msg.SkillType {
	case SkillTeleport:
		if msg.Target != nil {
			p.TryTeleport(*msg.Target, now, g.mapCfg)
		}
	case SkillMissile:
		if msg.Target != nil {
			if ms := p.TryMissile(*msg.Target, now, g.order); ms != nil {
				g.missiles = append(g.missiles, ms)
			}
		}
	case SkillLaser:
		if msg.Direction != nil {
			if lb := p.TryLaser(*msg.Direction, now, g.mapCfg); lb != nil {
				g.beams = append(g.beams, lb)
			}
		}
	case SkillInvuln:
		p.TryInvincibility(now)
	}
}

// isHost reports whether a command came from the hosting player's
// joined peer. Unjoined peers never qualify.
func (g *Game) isHost(peer PeerLink) bool {
	return g.hostPlayerID != "" && peer.ID() == g.hostPlayerID
}

func (g *Game) handleStart(peer PeerLink, now time.Time) {
	if !g.isHost(peer) {
		return
	}
	if !g.match.CanStart(len(g.order)) {
		return
	}
	g.matchStart = now
	g.beginFreeze(now)
	log.Printf("match started in session %s with %d players", g.SessionID, len(g.order))
}

func (g *Game) handleRestart(peer PeerLink) {
	if !g.isHost(peer) {
		return
	}
	if g.match.Phase != PhaseGameOver {
		return
	}
	g.match.Reset()
	g.missiles = nil
	g.beams = nil
	for _, p := range g.order {
		p.ResetStats()
		p.ResetToSpawn(g.spawns.Point(p.SpawnIndex))
		p.Frozen = false
	}
	log.Printf("session %s reset to warmup", g.SessionID)
}

// beginFreeze enters freeze time: projectiles vanish and every player
// is reset to its claimed spawn with input frozen
func (g *Game) beginFreeze(now time.Time) {
	g.match.EnterFreeze(now)
	g.missiles = nil
	g.beams = nil
	for _, p := range g.order {
		p.ResetToSpawn(g.spawns.Point(p.SpawnIndex))
		p.Frozen = true
	}
}

// tick advances the world one fixed step and broadcasts the snapshot
func (g *Game) tick(now time.Time) {
	dt := TickDuration.Seconds()

	g.advancePhase(now)
	g.consumeInputs()

	for _, p := range g.order {
		p.Update(dt, g.mapCfg, g.order)
	}
	g.updateMissiles(dt, now)
	g.updateBeams(now)

	if g.match.Phase == PhaseRound {
		g.checkRoundEnd(now)
	}

	g.broadcastState(now)
}

// advancePhase runs the timer-driven match transitions plus the
// warmup auto-respawn rule
func (g *Game) advancePhase(now time.Time) {
	switch g.match.Phase {
	case PhaseWarmup:
		for _, p := range g.order {
			if !p.Alive && now.Sub(p.DiedAt) >= WarmupRespawnDelay {
				p.ResetToSpawn(g.spawns.Point(p.SpawnIndex))
			}
		}
	case PhaseFreezeTime:
		if !now.Before(g.match.FreezeEnd) {
			g.match.EnterRound()
			for _, p := range g.order {
				p.Frozen = false
			}
		}
	case PhaseRoundEnd:
		if !now.Before(g.match.RoundEndAt) {
			g.beginFreeze(now)
		}
	}
}

// consumeInputs applies each player's latest pending movement request
func (g *Game) consumeInputs() {
	for _, p := range g.order {
		in := p.PendingInput
		if in == nil {
			continue
		}
		p.PendingInput = nil
		if !g.match.InputAllowed() {
			continue
		}
		if in.StopMovement {
			p.StopMovement()
		} else if in.Destination != nil {
			p.SetDestination(*in.Destination)
		}
	}
}

func (g *Game) updateMissiles(dt float64, now time.Time) {
	keep := g.missiles[:0]
	for _, ms := range g.missiles {
		victim := ms.Update(dt, g.mapCfg, g.players, g.order)
		if victim != nil {
			if victim.TakeDamage(ms.Damage, now) {
				g.creditKill(ms.OwnerID)
			}
		}
		if ms.Alive {
			keep = append(keep, ms)
		}
	}
	g.missiles = keep
}

func (g *Game) updateBeams(now time.Time) {
	keep := g.beams[:0]
	for _, lb := range g.beams {
		if lb.Expired(now) {
			continue
		}
		for _, p := range g.order {
			if !lb.Hits(p) {
				continue
			}
			lb.MarkHit(p.ID)
			if p.TakeDamage(LaserDamage, now) {
				g.creditKill(lb.OwnerID)
			}
		}
		keep = append(keep, lb)
	}
	g.beams = keep
}

func (g *Game) creditKill(ownerID string) {
	if killer, ok := g.players[ownerID]; ok {
		killer.Kills++
	}
}

// checkRoundEnd detects the last-player-standing condition. It only
// fires in ROUND, so repeated ticks in ROUND_END cannot double-count.
func (g *Game) checkRoundEnd(now time.Time) {
	if len(g.order) < MinPlayersToStart {
		return
	}
	var survivor *Player
	alive := 0
	for _, p := range g.order {
		if p.Alive {
			alive++
			survivor = p
		}
	}
	if alive > 1 {
		return
	}

	winnerID := ""
	if alive == 1 {
		survivor.RoundsSurvived++
		winnerID = survivor.ID
	}
	if g.match.EndRound(winnerID, now) {
		g.finishMatch(now)
	}
}

// finishMatch picks the match winner and persists the result
func (g *Game) finishMatch(now time.Time) {
	var best *Player
	for _, p := range g.order {
		if best == nil ||
			p.RoundsSurvived > best.RoundsSurvived ||
			(p.RoundsSurvived == best.RoundsSurvived && p.Kills > best.Kills) {
			best = p
		}
	}
	if best != nil {
		g.match.WinnerID = best.ID
	}
	log.Printf("session %s: match over, winner %s", g.SessionID, g.match.WinnerID)

	if g.store == nil {
		return
	}
	result := MatchResult{
		SessionID:   g.SessionID,
		MapName:     g.mapCfg.Name,
		TotalRounds: g.match.TotalRounds,
		Duration:    now.Sub(g.matchStart).Seconds(),
	}
	for _, p := range g.order {
		if p.ID == g.match.WinnerID {
			result.WinnerName = p.Name
		}
		result.Players = append(result.Players, PlayerResult{
			Name:           p.Name,
			Kills:          p.Kills,
			Deaths:         p.Deaths,
			RoundsSurvived: p.RoundsSurvived,
			Won:            p.ID == g.match.WinnerID,
		})
	}
	if err := g.store.RecordMatch(result); err != nil {
		log.Printf("record match: %v", err)
	}
}

// buildState produces the immutable snapshot for this tick
func (g *Game) buildState(now time.Time) GameState {
	state := GameState{
		Players:      make([]PlayerState, 0, len(g.order)),
		Missiles:     make([]MissileState, 0, len(g.missiles)),
		LaserBeams:   make([]LaserBeamState, 0, len(g.beams)),
		Timestamp:    now.UnixMilli(),
		GameMode:     g.match.Phase.String(),
		CurrentRound: g.match.CurrentRound,
		TotalRounds:  g.match.TotalRounds,
	}
	if !g.match.FreezeEnd.IsZero() {
		state.FreezeTimeEnd = g.match.FreezeEnd.UnixMilli()
	}
	state.WinnerID = g.match.WinnerID
	state.RoundWinnerID = g.match.RoundWinnerID

	for _, p := range g.order {
		state.Players = append(state.Players, p.ToState(now))
	}
	for _, ms := range g.missiles {
		state.Missiles = append(state.Missiles, ms.ToState())
	}
	for _, lb := range g.beams {
		state.LaserBeams = append(state.LaserBeams, lb.ToState())
	}
	return state
}

func (g *Game) stateUpdate(now time.Time) StateUpdateMsg {
	return StateUpdateMsg{
		Type:      MsgStateUpdate,
		State:     g.buildState(now),
		Timestamp: now.UnixMilli(),
	}
}

// broadcastState fans the snapshot to every peer; the msgpack frame is
// only encoded when somebody negotiated binary mode
func (g *Game) broadcastState(now time.Time) {
	update := g.stateUpdate(now)
	text, err := json.Marshal(update)
	if err != nil {
		log.Printf("marshal state: %v", err)
		return
	}
	var binary []byte
	if g.relay.HasBinaryPeers() {
		if binary, err = msgpack.Marshal(update); err != nil {
			log.Printf("msgpack state: %v", err)
			binary = nil
		}
	}
	g.relay.BroadcastState(text, binary)
}

// PlayerCount returns the number of joined players
func (g *Game) PlayerCount() int {
	return len(g.players)
}
