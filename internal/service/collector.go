package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var (
	dailyPlayers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "scoregate",
		Name:      "daily_players",
		Help:      "Distinct players with a score for the current UTC day.",
	})
	storeUp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "scoregate",
		Name:      "store_up",
		Help:      "1 when the last store ping succeeded.",
	})
)

// StatsCollector returns a background job that refreshes the gauges and the
// gRPC health status on schedule until ctx is done.
func (s *Service) StatsCollector(schedule string) func(context.Context) error {
	return func(ctx context.Context) error {
		scheduler := cron.New(cron.WithLocation(time.UTC))
		if _, err := scheduler.AddFunc(schedule, func() { s.collectStats(ctx) }); err != nil {
			return errors.Wrapf(err, "could not schedule stats collector %q", schedule)
		}
		s.collectStats(ctx)
		scheduler.Start()
		s.Logger().Info("started stats collector", zap.String("schedule", schedule))

		<-ctx.Done()
		<-scheduler.Stop().Done()
		return nil
	}
}

func (s *Service) collectStats(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.repo.Ping(ctx); err != nil {
		s.Logger().Warn("store ping failed", zap.Error(err))
		storeUp.Set(0)
		s.SetServing(false)
		return
	}
	storeUp.Set(1)
	s.SetServing(true)

	count, err := s.repo.CountDailyPlayers(ctx, s.today())
	if err != nil {
		s.Logger().Warn("could not count daily players", zap.Error(err))
		return
	}
	dailyPlayers.Set(float64(count))
}
