package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"scoregate/internal/app"
	"scoregate/internal/service"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	config, err := app.NewConfigFromEnv()
	if err != nil {
		log.Fatalf("can't create new config: %s", err)
	}

	application, err := app.New(ctx, config)
	if err != nil {
		log.Fatalf("application could not been initialized: %s", err)
	}

	gateway := service.New(application)
	if err = gateway.InitSchema(ctx); err != nil {
		log.Fatalf("schema could not been created: %s", err)
	}
	gateway.Register(application.Mux())
	if config.StatsSchedule != "" {
		application.AddBackgroundJob(gateway.StatsCollector(config.StatsSchedule))
	}

	if err = application.Run(); err != nil {
		log.Fatalf("application terminated abnormally: %s", err)
	}
}
