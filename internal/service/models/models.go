package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type User struct {
	ID         int64  `db:"id"`
	TelegramID string `db:"telegram_id"`
	Username   string `db:"username"`
	FirstName  string `db:"first_name"`
}

// Player is the user projection embedded in leaderboard rows.
type Player struct {
	Username   string `db:"username" json:"username"`
	FirstName  string `db:"first_name" json:"first_name"`
	TelegramID string `db:"telegram_id" json:"telegram_id"`
}

type DailyEntry struct {
	Score int64  `db:"score" json:"score"`
	Users Player `db:"users" json:"users"`
}

type AllTimeEntry struct {
	TotalScore  int64  `db:"total_score" json:"total_score"`
	GamesPlayed int64  `db:"games_played" json:"games_played"`
	Users       Player `db:"users" json:"users"`
}

type AllTimeScore struct {
	UserID      int64 `db:"user_id"`
	TotalScore  int64 `db:"total_score"`
	GamesPlayed int64 `db:"games_played"`
}

// TelegramID accepts a JSON string or a JSON integer.
type TelegramID string

func (id *TelegramID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = TelegramID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("telegramId must be a string or an integer: %w", err)
	}
	if _, err := n.Int64(); err != nil {
		return fmt.Errorf("telegramId must be a string or an integer, got %s", n)
	}
	*id = TelegramID(n.String())
	return nil
}

// Score accepts a JSON integer or a string holding one, the way an integer
// column coerces text.
type Score int64

func (s *Score) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(raw))
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid input syntax for type integer: %q", data)
	}
	*s = Score(n)
	return nil
}

type SubmitScoreRequest struct {
	TelegramID TelegramID `json:"telegramId"`
	Score      *Score     `json:"score"`
	Username   string     `json:"username"`
	FirstName  string     `json:"firstName"`
}
