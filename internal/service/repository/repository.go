package repository

import (
	"context"
	"database/sql"
	_ "embed"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"scoregate/internal/service/models"
)

var ErrUserNotFound = errors.New("user not found")

//go:embed schema_sqlite.sql
var sqliteSchema string

type Repository struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// InitSQLiteSchema creates the tables on a local SQLite database.
func (r *Repository) InitSQLiteSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, sqliteSchema); err != nil {
		return errors.Wrap(err, "could not create schema")
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const upsertUserSQL = `
insert into users (telegram_id, username, first_name)
values (:telegram_id, :username, :first_name)
on conflict (telegram_id) do update set
    username = excluded.username,
    first_name = excluded.first_name
returning id, telegram_id, username, first_name
`

const upsertDailyScoreSQL = `
insert into daily_scores (user_id, score, date)
values (:user_id, :score, :date)
on conflict (user_id, date) do update set
    score = excluded.score
`

// SubmitScore upserts the user and overwrites their score for date in one transaction.
// An empty telegram id or a nil score is written as NULL.
func (r *Repository) SubmitScore(ctx context.Context, user models.User, date string, score *int64) (_ *models.User, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not begin transaction")
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, ignoreDone(tx.Rollback()))
		}
	}()

	result := new(models.User)
	query, args, err := tx.BindNamed(upsertUserSQL, map[string]interface{}{
		"telegram_id": nullIfEmpty(user.TelegramID),
		"username":    user.Username,
		"first_name":  user.FirstName,
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not bind upsertUserSQL")
	}
	if err = tx.GetContext(ctx, result, query, args...); err != nil {
		return nil, errors.Wrap(err, "could not execute upsertUserSQL")
	}

	query, args, err = tx.BindNamed(upsertDailyScoreSQL, map[string]interface{}{
		"user_id": result.ID,
		"score":   score,
		"date":    date,
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not bind upsertDailyScoreSQL")
	}
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return nil, errors.Wrap(err, "could not execute upsertDailyScoreSQL")
	}

	if err = tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "could not commit score")
	}
	return result, nil
}

const dailyLeaderboardSQL = `
select d.score,
       u.username as "users.username",
       u.first_name as "users.first_name",
       u.telegram_id as "users.telegram_id"
from daily_scores d
join users u on u.id = d.user_id
where d.date = ?
order by d.score desc, d.user_id
limit ?
`

func (r *Repository) DailyLeaderboard(ctx context.Context, date string, limit int) ([]models.DailyEntry, error) {
	entries := make([]models.DailyEntry, 0, limit)
	if err := r.db.SelectContext(ctx, &entries, r.db.Rebind(dailyLeaderboardSQL), date, limit); err != nil {
		return nil, errors.Wrap(err, "could not execute dailyLeaderboardSQL")
	}
	return entries, nil
}

const allTimeLeaderboardSQL = `
select a.total_score,
       a.games_played,
       u.username as "users.username",
       u.first_name as "users.first_name",
       u.telegram_id as "users.telegram_id"
from all_time_scores a
join users u on u.id = a.user_id
order by a.total_score desc, a.user_id
limit ?
`

func (r *Repository) AllTimeLeaderboard(ctx context.Context, limit int) ([]models.AllTimeEntry, error) {
	entries := make([]models.AllTimeEntry, 0, limit)
	if err := r.db.SelectContext(ctx, &entries, r.db.Rebind(allTimeLeaderboardSQL), limit); err != nil {
		return nil, errors.Wrap(err, "could not execute allTimeLeaderboardSQL")
	}
	return entries, nil
}

const findUserSQL = `select id, telegram_id, username, first_name from users where telegram_id = ?`

// FindUser returns ErrUserNotFound when no user has telegramID.
func (r *Repository) FindUser(ctx context.Context, telegramID string) (*models.User, error) {
	user := new(models.User)
	err := r.db.GetContext(ctx, user, r.db.Rebind(findUserSQL), telegramID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "could not execute findUserSQL")
	}
	return user, nil
}

const dailyScoreSQL = `select score from daily_scores where user_id = ? and date = ?`

// DailyScore reads zero when the user has not played on date.
func (r *Repository) DailyScore(ctx context.Context, userID int64, date string) (int64, error) {
	var score int64
	err := r.db.GetContext(ctx, &score, r.db.Rebind(dailyScoreSQL), userID, date)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "could not execute dailyScoreSQL")
	}
	return score, nil
}

const allTimeScoreSQL = `select user_id, total_score, games_played from all_time_scores where user_id = ?`

// AllTimeScore reads a zero row when the user has no all-time record yet.
func (r *Repository) AllTimeScore(ctx context.Context, userID int64) (*models.AllTimeScore, error) {
	result := &models.AllTimeScore{UserID: userID}
	err := r.db.GetContext(ctx, result, r.db.Rebind(allTimeScoreSQL), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.AllTimeScore{UserID: userID}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "could not execute allTimeScoreSQL")
	}
	return result, nil
}

const countDailyPlayersSQL = `select count(distinct user_id) from daily_scores where date = ?`

func (r *Repository) CountDailyPlayers(ctx context.Context, date string) (int64, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, r.db.Rebind(countDailyPlayersSQL), date); err != nil {
		return 0, errors.Wrap(err, "could not execute countDailyPlayersSQL")
	}
	return count, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func ignoreDone(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}
