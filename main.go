package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	mapPath := flag.String("map", "", "Path to map config JSON (default: built-in quad arena)")
	dbPath := flag.String("db", "arena.db", "Path to results database (empty to disable persistence)")
	rounds := flag.Int("rounds", DefaultTotalRounds, "Rounds per match")
	name := flag.String("name", "Host", "Hosting player's display name")
	password := flag.String("password", "", "Lobby password (empty for open lobby)")
	publicURL := flag.String("public", "", "Public base URL for the join QR code (default: http://localhost<addr>)")
	flag.Parse()

	mapCfg := DefaultMap()
	if *mapPath != "" {
		var err error
		mapCfg, err = LoadMapConfig(*mapPath)
		if err != nil {
			log.Fatalf("map config: %v", err)
		}
	}

	var store *Store
	if *dbPath != "" {
		var err error
		store, err = OpenStore(*dbPath)
		if err != nil {
			log.Fatalf("open store: %v", err)
		}
		defer store.Close()
	}

	auth, err := NewSessionAuth(*password)
	if err != nil {
		log.Fatalf("session auth: %v", err)
	}

	relay := NewRelay()
	game := NewGame(mapCfg, relay, auth, store, *rounds)

	// The hosting player is just another peer on the same queue.
	local := NewLoopbackPeer(relay)
	game.SetHostLink(local)
	go game.Run()

	replica := NewReplica()
	go runLocalClient(local, replica)

	if err := local.Request(JoinRequestMsg{
		Type:     MsgJoinRequest,
		Username: *name,
		Password: *password,
	}); err != nil {
		log.Fatalf("host join: %v", err)
	}

	if *publicURL == "" {
		*publicURL = fmt.Sprintf("http://localhost%s", *addr)
	}
	mux := SetupRoutes(relay, game, store, *publicURL)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	server := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		log.Printf("Hosting session %s (map %q) on %s", game.SessionID, mapCfg.Name, *addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down...")
	local.Disconnect()
	game.Stop()
	server.Close()
}

// runLocalClient is the host's client view: the same broadcast
// consumer every remote peer runs, fed over the loopback path
func runLocalClient(local *LoopbackPeer, replica *Replica) {
	frame := time.NewTicker(time.Second / 60)
	defer frame.Stop()
	last := time.Now()

	for {
		select {
		case raw, ok := <-local.Out():
			if !ok {
				return
			}
			replica.ApplyFrame(raw)
		case now := <-frame.C:
			replica.Advance(now.Sub(last).Seconds())
			last = now
		}
	}
}
