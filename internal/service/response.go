package service

import (
	"encoding/json"
	"net/http"

	"scoregate/internal/service/models"
)

type healthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type submitScoreResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	User    string `json:"user"`
}

type dailyLeaderboardResponse struct {
	Success     bool                `json:"success"`
	Date        string              `json:"date"`
	Leaderboard []models.DailyEntry `json:"leaderboard"`
}

type allTimeLeaderboardResponse struct {
	Success     bool                  `json:"success"`
	Leaderboard []models.AllTimeEntry `json:"leaderboard"`
}

type statsResponse struct {
	Success     bool   `json:"success"`
	Username    string `json:"username"`
	TodayScore  int64  `json:"todayScore"`
	TotalScore  int64  `json:"totalScore"`
	GamesPlayed int64  `json:"gamesPlayed"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
