package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
	qrcode "github.com/skip2/go-qrcode"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SetupRoutes configures the host's HTTP surface: the peer WebSocket
// endpoint, a QR code for the join URL, and read-only results views.
func SetupRoutes(relay *Relay, game *Game, store *Store, publicURL string) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !relay.CanAccept(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("upgrade error: %v", err)
			return
		}

		relay.TrackConnect(ip)
		peer := NewPeer(relay, conn, ip)
		go peer.WritePump()
		go peer.ReadPump()
	})

	// Phones scan this to join the hosted session
	mux.HandleFunc("/join.png", func(w http.ResponseWriter, r *http.Request) {
		joinURL := fmt.Sprintf("%s/?sid=%s", publicURL, game.SessionID)
		png, err := qrcode.Encode(joinURL, qrcode.Medium, 256)
		if err != nil {
			http.Error(w, "qr encode failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	})

	mux.HandleFunc("/leaderboard", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "persistence disabled", http.StatusNotFound)
			return
		}
		rows, err := store.Leaderboard(20)
		if err != nil {
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rows)
	})

	mux.HandleFunc("/matches", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "persistence disabled", http.StatusNotFound)
			return
		}
		rows, err := store.RecentMatches(20)
		if err != nil {
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rows)
	})

	return mux
}
