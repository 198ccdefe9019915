package main

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists completed match results in SQLite. The host runs fine
// without one; every caller treats a nil *Store as "persistence off".
type Store struct {
	conn *sql.DB
}

// MatchResult is the record written at game over
type MatchResult struct {
	SessionID   string
	MapName     string
	TotalRounds int
	WinnerName  string
	Duration    float64 // seconds
	Players     []PlayerResult
}

// PlayerResult is one player's line in a match result
type PlayerResult struct {
	Name           string
	Kills          int
	Deaths         int
	RoundsSurvived int
	Won            bool
}

// LeaderboardRow aggregates a player's career across recorded matches
type LeaderboardRow struct {
	Name           string  `json:"name"`
	Matches        int     `json:"matches"`
	Wins           int     `json:"wins"`
	Kills          int     `json:"kills"`
	Deaths         int     `json:"deaths"`
	RoundsSurvived int     `json:"roundsSurvived"`
	KD             float64 `json:"kd"`
}

// OpenStore opens (or creates) the results database
func OpenStore(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// WAL keeps match writes from blocking leaderboard reads
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, err
	}

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS matches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		map_name TEXT NOT NULL DEFAULT '',
		total_rounds INTEGER NOT NULL DEFAULT 0,
		winner_name TEXT NOT NULL DEFAULT '',
		duration REAL NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS match_players (
		match_id INTEGER NOT NULL REFERENCES matches(id),
		player_name TEXT NOT NULL,
		kills INTEGER NOT NULL DEFAULT 0,
		deaths INTEGER NOT NULL DEFAULT 0,
		rounds_survived INTEGER NOT NULL DEFAULT 0,
		won INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_match_players_match ON match_players(match_id);
	CREATE INDEX IF NOT EXISTS idx_match_players_name ON match_players(player_name);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// RecordMatch writes one completed match and its player lines
func (s *Store) RecordMatch(result MatchResult) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		"INSERT INTO matches (session_id, map_name, total_rounds, winner_name, duration) VALUES (?, ?, ?, ?, ?)",
		result.SessionID, result.MapName, result.TotalRounds, result.WinnerName, result.Duration,
	)
	if err != nil {
		return err
	}
	matchID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for _, p := range result.Players {
		won := 0
		if p.Won {
			won = 1
		}
		if _, err := tx.Exec(
			"INSERT INTO match_players (match_id, player_name, kills, deaths, rounds_survived, won) VALUES (?, ?, ?, ?, ?, ?)",
			matchID, p.Name, p.Kills, p.Deaths, p.RoundsSurvived, won,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// MatchCount returns the number of recorded matches
func (s *Store) MatchCount() (int, error) {
	var n int
	err := s.conn.QueryRow("SELECT COUNT(*) FROM matches").Scan(&n)
	return n, err
}

// Leaderboard aggregates career stats by player name, most wins first
func (s *Store) Leaderboard(limit int) ([]LeaderboardRow, error) {
	rows, err := s.conn.Query(`
		SELECT player_name,
		       COUNT(*) AS matches,
		       SUM(won) AS wins,
		       SUM(kills) AS kills,
		       SUM(deaths) AS deaths,
		       SUM(rounds_survived) AS rounds_survived
		FROM match_players
		GROUP BY player_name
		ORDER BY wins DESC, kills DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []LeaderboardRow
	for rows.Next() {
		var r LeaderboardRow
		if err := rows.Scan(&r.Name, &r.Matches, &r.Wins, &r.Kills, &r.Deaths, &r.RoundsSurvived); err != nil {
			return nil, err
		}
		if r.Deaths > 0 {
			r.KD = float64(r.Kills) / float64(r.Deaths)
		} else {
			r.KD = float64(r.Kills)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// RecentMatches returns the newest recorded matches
func (s *Store) RecentMatches(limit int) ([]MatchSummary, error) {
	rows, err := s.conn.Query(`
		SELECT session_id, map_name, total_rounds, winner_name, duration, created_at
		FROM matches ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []MatchSummary
	for rows.Next() {
		var m MatchSummary
		if err := rows.Scan(&m.SessionID, &m.MapName, &m.TotalRounds, &m.WinnerName, &m.Duration, &m.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// MatchSummary is a recorded match header
type MatchSummary struct {
	SessionID   string    `json:"sessionId"`
	MapName     string    `json:"mapName"`
	TotalRounds int       `json:"totalRounds"`
	WinnerName  string    `json:"winnerName"`
	Duration    float64   `json:"duration"`
	CreatedAt   time.Time `json:"createdAt"`
}
