package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"compliance-gate/internal/api"
	"compliance-gate/internal/audit"
	"compliance-gate/internal/broker"
	"compliance-gate/internal/events"
	"compliance-gate/internal/gate"
	"compliance-gate/internal/market"
	"compliance-gate/internal/risk"
	"compliance-gate/internal/rules"
	"compliance-gate/pkg/config"
	"compliance-gate/pkg/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Println("compliance-gate starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer database.Close()

	if err := database.ApplyMigrations(context.Background()); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	bus := events.NewBus()
	auditStore := audit.NewSQLiteStore(database)
	riskEval := risk.NewEvaluator(risk.Limits{
		MaxPositionFraction: cfg.RiskMaxPositionFraction,
		MaxTotalExposure:    cfg.RiskMaxTotalExposure,
		MaxDrawdown:         cfg.RiskMaxDrawdown,
		MinCashFraction:     cfg.RiskMinCashFraction,
	})
	paperBroker := broker.NewPaper(cfg.BrokerFeeRate)

	registry := gate.NewRegistry()
	for _, name := range cfg.Strategies {
		exec, err := buildExecutor(name, cfg, auditStore, riskEval, paperBroker, bus, database)
		if err != nil {
			log.Fatalf("strategy %s: %v", name, err)
		}
		registry.Register(exec)
	}
	log.Printf("registered strategies: %v", registry.Strategies())

	server := api.NewServer(bus, database, registry, api.Options{
		JWTSecret:      cfg.JWTSecret,
		RulesDir:       cfg.RulesDir,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.UseMockFeed {
		go runMockFeed(ctx, registry, cfg.Strategies)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("operator console listening on :%s", cfg.Port)
		errCh <- server.Start(":" + cfg.Port)
	}()

	select {
	case <-ctx.Done():
		log.Println("shutdown signal received")
	case err := <-errCh:
		log.Fatalf("server: %v", err)
	}
	log.Println("compliance-gate stopped")
}

// runMockFeed drives the first strategy with synthetic signals so the gate
// can be exercised without an upstream strategy process.
func runMockFeed(ctx context.Context, registry *gate.Registry, strategies []string) {
	if len(strategies) == 0 {
		return
	}
	exec, err := registry.Get(strategies[0])
	if err != nil {
		log.Printf("mock feed: %v", err)
		return
	}

	feed := &market.MockFeed{}
	for tick := range feed.Start(ctx) {
		if _, err := exec.ProcessSignal(ctx, tick.Signal, tick.Snapshot); err != nil {
			log.Printf("mock feed: process signal: %v", err)
		}
	}
}

// buildExecutor wires the rule engine, audit log and collaborators for one
// strategy. A missing rule file yields an empty rule set rather than a fatal
// error so a freshly provisioned strategy can start before its rules land.
func buildExecutor(name string, cfg *config.Config, store audit.Store, riskEval gate.RiskEvaluator, brokerAdapter gate.BrokerAdapter, bus *events.Bus, database *db.Database) (*gate.Executor, error) {
	rulesPath := filepath.Join(cfg.RulesDir, name+".yaml")
	var rs *rules.RuleSet
	if _, err := os.Stat(rulesPath); err == nil {
		loaded, warnings, err := rules.LoadFile(rulesPath)
		if err != nil {
			return nil, err
		}
		for _, w := range warnings {
			log.Printf("strategy %s: rule warning: %v", name, w)
		}
		rs = loaded
	} else {
		log.Printf("strategy %s: no rule file at %s, starting with empty rule set", name, rulesPath)
	}

	engine := rules.NewEngine(name, rs)

	auditLog, err := audit.NewLog(context.Background(), name, store)
	if err != nil {
		return nil, err
	}
	if n := auditLog.Len(); n > 0 {
		log.Printf("strategy %s: recovered %d audit entries", name, n)
	}

	return gate.NewExecutor(name, engine, riskEval, brokerAdapter, auditLog, bus, database, gate.Config{
		AutoApprove:           cfg.AutoApprove,
		RequireManualApproval: cfg.RequireManualApproval,
	}), nil
}
