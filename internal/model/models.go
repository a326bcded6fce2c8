// Package model defines the data models for the cash-game ledger bot.
package model

import "time"

// Direction marks which way money moved for one ledger line.
type Direction string

// Transaction directions. "in" is a buy-in, "out" is a cash-out.
const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Valid reports whether d is one of the two known directions.
func (d Direction) Valid() bool {
	return d == DirectionIn || d == DirectionOut
}

// Game represents one recorded session, scoped to a chat and (optionally)
// the message that originated it. MessageID is nil for games created
// programmatically rather than from a chat message.
type Game struct {
	ID        int64      `db:"id"`
	ChatID    int64      `db:"chat_id"`
	MessageID *int64     `db:"message_id"`
	GameDate  *time.Time `db:"game_date"`
	CreatedAt time.Time  `db:"created_at"`
}

// Transaction represents one ledger line: one participant moving one amount
// in one direction for one game.
type Transaction struct {
	ID        int64     `db:"id"`
	GameID    int64     `db:"game_id"`
	Username  string    `db:"username"`
	Amount    int64     `db:"amount"`
	Type      Direction `db:"type"`
	CreatedAt time.Time `db:"created_at"`
}

// UserStat is one aggregate row: a participant's totals across the games
// matched by the query window.
type UserStat struct {
	Username   string `db:"username"`
	TotalIn    int64  `db:"total_in"`
	TotalOut   int64  `db:"total_out"`
	GamesCount int64  `db:"games_count"`
}

// Score returns the net score, the leaderboard ranking metric.
func (s *UserStat) Score() int64 {
	return s.TotalOut - s.TotalIn
}

// UserScore is the reduced leaderboard row.
type UserScore struct {
	Username string `db:"username"`
	Score    int64  `db:"score"`
}
