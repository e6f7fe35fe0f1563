package main

import (
	"context"
	"log"
	"time"

	"tasktracker/internal/config"
	"tasktracker/internal/monitoring"
	"tasktracker/internal/seed"
	"tasktracker/internal/services"
	"tasktracker/internal/store"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	checker := monitoring.NewHealthChecker()
	checker.Register("database", st.Ping)
	for name, check := range checker.Run(ctx) {
		if check.Status != "healthy" {
			log.Fatalf("health check %s: %s", name, check.Message)
		}
	}

	seeder := seed.NewSeeder(st, services.NewTaskService(st), cfg.Seed.DemoEmail)
	result, err := seeder.Run(ctx)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}

	log.Printf("seed complete: deleted %d stale sample tasks, created %d", result.TasksDeleted, result.TasksCreated)
}
