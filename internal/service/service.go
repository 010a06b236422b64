package service

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"scoregate/internal/app"
	"scoregate/internal/service/models"
	"scoregate/internal/service/repository"
)

const (
	leaderboardSize = 10
	dateLayout      = "2006-01-02"
	timeLayout      = "2006-01-02T15:04:05.000Z07:00"

	defaultFirstName = "Player"
)

type Service struct {
	app.App
	repo *repository.Repository
	now  func() time.Time
}

func New(application app.App) *Service {
	return &Service{
		App:  application,
		repo: repository.New(application.DB()),
		now:  time.Now,
	}
}

// Register mounts the gateway routes on mux.
func (s *Service) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.health)
	mux.HandleFunc("POST /submit-score", s.submitScore)
	mux.HandleFunc("GET /leaderboard/daily", s.dailyLeaderboard)
	mux.HandleFunc("GET /leaderboard/alltime", s.allTimeLeaderboard)
	mux.HandleFunc("GET /stats/{telegramId}", s.stats)
}

// InitSchema creates the local tables when DB_INIT_SCHEMA is set.
func (s *Service) InitSchema(ctx context.Context) error {
	if !s.Config().DBInitSchema {
		return nil
	}
	if s.Config().DBDriver != "sqlite3" {
		return errors.Errorf("DB_INIT_SCHEMA is only supported for sqlite3, got %s", s.Config().DBDriver)
	}
	return s.repo.InitSQLiteSchema(ctx)
}

// today is the UTC calendar day; the daily board rolls over at UTC midnight.
func (s *Service) today() string {
	return s.now().UTC().Format(dateLayout)
}

func (s *Service) storeContext(r *http.Request) (context.Context, context.CancelFunc) {
	if timeout := s.Config().StoreTimeout; timeout > 0 {
		return context.WithTimeout(r.Context(), timeout)
	}
	return context.WithCancel(r.Context())
}

func (s *Service) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "✅ Score gateway running",
		Time:   s.now().UTC().Format(timeLayout),
	})
}

func (s *Service) submitScore(w http.ResponseWriter, r *http.Request) {
	// missing fields go to the store as NULL and fail on its constraints
	var request models.SubmitScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.fail(w, r, http.StatusInternalServerError, errors.Wrap(err, "invalid request body"))
		return
	}

	user := models.User{
		TelegramID: string(request.TelegramID),
		Username:   request.Username,
		FirstName:  request.FirstName,
	}
	if user.Username == "" {
		user.Username = "user_" + user.TelegramID
	}
	if user.FirstName == "" {
		user.FirstName = defaultFirstName
	}
	s.Logger().Debug("score received",
		zap.String("telegram_id", user.TelegramID),
		zap.Any("score", request.Score),
		zap.String("username", user.Username),
	)

	ctx, cancel := s.storeContext(r)
	defer cancel()
	saved, err := s.repo.SubmitScore(ctx, user, s.today(), (*int64)(request.Score))
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, submitScoreResponse{
		Success: true,
		Message: "✅ Score saved!",
		User:    saved.Username,
	})
}

func (s *Service) dailyLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()
	today := s.today()
	entries, err := s.repo.DailyLeaderboard(ctx, today, leaderboardSize)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, dailyLeaderboardResponse{
		Success:     true,
		Date:        today,
		Leaderboard: entries,
	})
}

func (s *Service) allTimeLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.storeContext(r)
	defer cancel()
	entries, err := s.repo.AllTimeLeaderboard(ctx, leaderboardSize)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, allTimeLeaderboardResponse{
		Success:     true,
		Leaderboard: entries,
	})
}

func (s *Service) stats(w http.ResponseWriter, r *http.Request) {
	telegramID := r.PathValue("telegramId")
	ctx, cancel := s.storeContext(r)
	defer cancel()

	user, err := s.repo.FindUser(ctx, telegramID)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		s.fail(w, r, http.StatusNotFound, err)
		return
	case err != nil:
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}

	// the score lookups are best effort, a failure reads as zero
	todayScore, err := s.repo.DailyScore(ctx, user.ID, s.today())
	if err != nil {
		s.Logger().Warn("could not read today's score", zap.Error(err), zap.String("telegram_id", telegramID))
	}
	allTime, err := s.repo.AllTimeScore(ctx, user.ID)
	if err != nil {
		s.Logger().Warn("could not read all-time score", zap.Error(err), zap.String("telegram_id", telegramID))
		allTime = &models.AllTimeScore{UserID: user.ID}
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Success:     true,
		Username:    user.Username,
		TodayScore:  todayScore,
		TotalScore:  allTime.TotalScore,
		GamesPlayed: allTime.GamesPlayed,
	})
}

// fail logs the full error chain and answers with the root cause message.
func (s *Service) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	err = s.Error(r.Context(), err, status, zap.String("path", r.URL.Path))
	writeJSON(w, status, errorResponse{Success: false, Error: errors.Cause(err).Error()})
}
