package main

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	sendBufSize       = 256
	maxMessagesPerSec = 50
	maxNameLen        = 16

	maxConnsPerIP = 5
	maxTotalConns = 64
	commandBuf    = 256
)

// PeerLink is the narrow outbound contract between the simulation and
// one connected peer. The websocket peer and the host's in-process
// loopback both implement it, so the hosting player travels the same
// code paths as remote peers.
type PeerLink interface {
	ID() string
	SetID(id string)
	// Deliver queues a text frame; it never blocks, a slow peer drops.
	Deliver(data []byte)
	// DeliverState queues a snapshot, choosing the binary frame when
	// the peer negotiated binary mode and one is available.
	DeliverState(text, binary []byte)
	WantsBinary() bool
	SetBinary(on bool)
	Close()
}

// Command is one unit of inbound work for the simulation goroutine:
// either a decoded message or a disconnect notice.
type Command struct {
	Peer   PeerLink
	Msg    InboundMessage // nil when Closed
	Closed bool
}

// Relay wraps the peer-connection layer. It accepts connections,
// decodes inbound traffic into the command queue, and fans outbound
// frames to joined peers. All simulation state stays on the other side
// of the queue.
type Relay struct {
	commands chan Command

	mu    sync.Mutex
	peers map[string]PeerLink // joined peers by player id

	// Connection limiting, accessed from HTTP handlers
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int
}

// NewRelay creates a relay with an empty peer table
func NewRelay() *Relay {
	return &Relay{
		commands: make(chan Command, commandBuf),
		peers:    make(map[string]PeerLink),
		ipConns:  make(map[string]int),
	}
}

// Commands exposes the inbound queue to the simulation loop
func (r *Relay) Commands() <-chan Command {
	return r.commands
}

// Enqueue places a command on the queue, dropping when the simulation
// has fallen hopelessly behind (latest snapshot semantics make that
// recoverable for every message kind except join, which clients retry).
func (r *Relay) Enqueue(cmd Command) {
	select {
	case r.commands <- cmd:
	default:
		log.Printf("relay: command queue full, dropping %T", cmd.Msg)
	}
}

// Register adds a joined peer under its player id
func (r *Relay) Register(id string, link PeerLink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[id] = link
}

// Unregister removes a peer after disconnect or rejection
func (r *Relay) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, id)
}

// PeerCount returns the number of joined peers
func (r *Relay) PeerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// HasBinaryPeers reports whether any joined peer negotiated msgpack
// snapshots, so the encoder can skip the binary frame entirely
func (r *Relay) HasBinaryPeers() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, link := range r.peers {
		if link.WantsBinary() {
			return true
		}
	}
	return false
}

// Broadcast sends a text frame to every joined peer
func (r *Relay) Broadcast(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, link := range r.peers {
		link.Deliver(data)
	}
}

// BroadcastState sends the per-tick snapshot, binary where negotiated
func (r *Relay) BroadcastState(text, binary []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, link := range r.peers {
		link.DeliverState(text, binary)
	}
}

// SendTo delivers a text frame to one joined peer
func (r *Relay) SendTo(id string, data []byte) {
	r.mu.Lock()
	link, ok := r.peers[id]
	r.mu.Unlock()
	if ok {
		link.Deliver(data)
	}
}

func (r *Relay) CanAccept(ip string) bool {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.totalConns >= maxTotalConns {
		return false
	}
	return r.ipConns[ip] < maxConnsPerIP
}

func (r *Relay) TrackConnect(ip string) {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	r.ipConns[ip]++
	r.totalConns++
}

func (r *Relay) TrackDisconnect(ip string) {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	r.ipConns[ip]--
	if r.ipConns[ip] <= 0 {
		delete(r.ipConns, ip)
	}
	r.totalConns--
}

// Peer is a remote peer over a WebSocket connection
type Peer struct {
	relay      *Relay
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string

	mu     sync.Mutex
	id     string
	binary bool

	msgCount   int
	msgResetAt time.Time
}

// NewPeer wraps an accepted connection
func NewPeer(relay *Relay, conn *websocket.Conn, remoteAddr string) *Peer {
	return &Peer{
		relay:      relay,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		remoteAddr: remoteAddr,
	}
}

func (p *Peer) ID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id
}

func (p *Peer) SetID(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.id = id
}

func (p *Peer) WantsBinary() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.binary
}

func (p *Peer) SetBinary(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.binary = on
}

// Deliver queues a text frame, dropping when the peer is too slow
func (p *Peer) Deliver(data []byte) {
	defer func() { recover() }()
	select {
	case p.send <- data:
	default:
	}
}

// DeliverState queues a snapshot frame. Binary frames carry a 0xFF
// marker byte so WritePump can pick the WebSocket message type.
func (p *Peer) DeliverState(text, binary []byte) {
	if p.WantsBinary() && binary != nil {
		msg := make([]byte, len(binary)+1)
		msg[0] = 0xFF
		copy(msg[1:], binary)
		defer func() { recover() }()
		select {
		case p.send <- msg:
		default:
		}
		return
	}
	p.Deliver(text)
}

func (p *Peer) Close() {
	p.conn.Close()
}

// ReadPump reads frames, decodes them at the protocol boundary, and
// enqueues commands for the simulation
func (p *Peer) ReadPump() {
	defer func() {
		p.relay.TrackDisconnect(p.remoteAddr)
		p.relay.Enqueue(Command{Peer: p, Closed: true})
		p.conn.Close()
	}()

	p.conn.SetReadLimit(maxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws error: %v", err)
			}
			return
		}

		now := time.Now()
		if now.After(p.msgResetAt) {
			p.msgCount = 0
			p.msgResetAt = now.Add(time.Second)
		}
		p.msgCount++
		if p.msgCount > maxMessagesPerSec {
			log.Printf("rate limit exceeded for %s, disconnecting", p.remoteAddr)
			return
		}

		msg, err := DecodeMessage(raw)
		if err != nil {
			if !errors.Is(err, ErrUnknownMessage) {
				log.Printf("decode error from %s: %v", p.remoteAddr, err)
			}
			continue
		}
		p.relay.Enqueue(Command{Peer: p, Msg: msg})
	}
}

// WritePump writes queued frames and keeps the connection alive
func (p *Peer) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case message, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = p.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = p.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// LoopbackPeer is the host's own client attachment. Requests are
// marshaled and pushed through the same decode boundary and command
// queue as remote traffic, and broadcasts arrive on Out like any other
// subscriber, so hosting grants no privileged fast path.
type LoopbackPeer struct {
	relay *Relay
	out   chan []byte

	mu     sync.Mutex
	id     string
	binary bool
}

// NewLoopbackPeer creates the in-process peer for the hosting player
func NewLoopbackPeer(relay *Relay) *LoopbackPeer {
	return &LoopbackPeer{
		relay: relay,
		out:   make(chan []byte, sendBufSize),
	}
}

func (lp *LoopbackPeer) ID() string {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return lp.id
}

func (lp *LoopbackPeer) SetID(id string) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	lp.id = id
}

func (lp *LoopbackPeer) WantsBinary() bool {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return lp.binary
}

func (lp *LoopbackPeer) SetBinary(on bool) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	lp.binary = on
}

func (lp *LoopbackPeer) Deliver(data []byte) {
	select {
	case lp.out <- data:
	default:
	}
}

func (lp *LoopbackPeer) DeliverState(text, binary []byte) {
	lp.Deliver(text)
}

func (lp *LoopbackPeer) Close() {}

// Out exposes delivered frames to the local client view
func (lp *LoopbackPeer) Out() <-chan []byte {
	return lp.out
}

// Request serializes a message and feeds it through the identical
// inbound path used for remote peers
func (lp *LoopbackPeer) Request(msg interface{}) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	decoded, err := DecodeMessage(raw)
	if err != nil {
		return err
	}
	lp.relay.Enqueue(Command{Peer: lp, Msg: decoded})
	return nil
}

// Disconnect announces the loopback peer's departure to the simulation
func (lp *LoopbackPeer) Disconnect() {
	lp.relay.Enqueue(Command{Peer: lp, Closed: true})
}
