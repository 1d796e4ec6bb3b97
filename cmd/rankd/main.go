// Package main runs the ranking daemon: it ingests the platform feed and
// processes each closed trading day on a cron schedule.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"agent-roster-lab/internal/capital"
	"agent-roster-lab/internal/config"
	"agent-roster-lab/internal/domain"
	"agent-roster-lab/internal/exitrule"
	"agent-roster-lab/internal/feed"
	"agent-roster-lab/internal/orchestrator"
	"agent-roster-lab/internal/scheduler"
	clickstore "agent-roster-lab/internal/storage/clickhouse"
	"agent-roster-lab/internal/storage/migrations"
	"agent-roster-lab/internal/storage/postgres"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[rankd] starting")

	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[rankd] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[rankd] config validation: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("[rankd] postgres: %v", err)
	}
	defer pool.Close()
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		log.Fatalf("[rankd] postgres migrations: %v", err)
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouse.DSN)
	if err != nil {
		log.Fatalf("[rankd] clickhouse migrations: %v", err)
	}
	defer conn.Close()

	stores := orchestrator.Stores{
		Balances:      postgres.NewBalanceStore(pool),
		Trades:        postgres.NewTradeStore(pool),
		DailyReturns:  clickstore.NewDailyReturnStore(conn),
		WindowReturns: clickstore.NewWindowReturnStore(conn),
		Roster:        postgres.NewRosterStore(pool),
		States:        postgres.NewAgentStateStore(pool),
		Events:        postgres.NewRotationEventStore(pool),
		Capital:       postgres.NewCapitalStore(pool),
	}

	orch := orchestrator.New(stores, orchestrator.Options{
		WindowDays:     cfg.Engine.WindowDays,
		RosterSize:     cfg.Engine.RosterSize,
		MinAUM:         cfg.Engine.MinAUM,
		AccountPool:    cfg.Engine.AccountPool,
		RebalanceEvery: cfg.Engine.RebalanceEvery,
		CapitalParams: capital.Params{
			InitialCapital:  cfg.Engine.InitialCapital,
			AgentReturnBand: cfg.ReturnBand(),
			FactorBand:      cfg.FactorBand(),
			StopLoss:        cfg.Capital.StopLoss,
			MaxMoveFraction: cfg.Capital.MaxMoveFraction,
		},
		ExitEngine: exitrule.NewEngine(exitrule.Any,
			exitrule.NewConsecutiveDeclineRule(cfg.Exit.DeclineDays),
			exitrule.NewReturnFloorRule(cfg.Exit.ReturnFloor),
		),
		Verbose: cfg.Engine.Verbose,
	})

	if cfg.Feed.URL != "" {
		client, err := feed.NewClient(ctx, cfg.Feed.URL, stores.Balances, stores.Trades, nil)
		if err != nil {
			log.Fatalf("[rankd] feed: %v", err)
		}
		defer client.Close()
		log.Printf("[rankd] feed connected: %s", cfg.Feed.URL)
	} else {
		log.Println("[rankd] no feed url configured, relying on external ingestion")
	}

	sched := scheduler.NewScheduler(ctx, orch)
	if err := sched.Register(cfg.Schedule.DailyCron); err != nil {
		log.Fatalf("[rankd] scheduler: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	if v := os.Getenv("RUN_FIRST_DAY"); v != "" {
		date, err := domain.ParseDay(v)
		if err != nil {
			log.Fatalf("[rankd] RUN_FIRST_DAY: %v", err)
		}
		sched.RunFirstDayNow(date)
	}
	if v := os.Getenv("RUN_DAY"); v != "" {
		date, err := domain.ParseDay(v)
		if err != nil {
			log.Fatalf("[rankd] RUN_DAY: %v", err)
		}
		sched.RunDayNow(date)
	}

	sig := <-sigCh
	log.Printf("[rankd] received %v, shutting down", sig)
}
