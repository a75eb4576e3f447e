// Command dayforge wires every subsystem together and serves the REST/WS
// API: store -> streaming -> delegation worker -> relay -> pollers ->
// api -> http.ListenAndServe, with one OS process owning every subsystem.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dayforge/dayforge/internal/api"
	"github.com/dayforge/dayforge/internal/auth"
	"github.com/dayforge/dayforge/internal/buffer"
	"github.com/dayforge/dayforge/internal/config"
	"github.com/dayforge/dayforge/internal/delegation"
	"github.com/dayforge/dayforge/internal/domain"
	"github.com/dayforge/dayforge/internal/energy"
	"github.com/dayforge/dayforge/internal/poller"
	"github.com/dayforge/dayforge/internal/profiler"
	"github.com/dayforge/dayforge/internal/relay"
	"github.com/dayforge/dayforge/internal/store"
	"github.com/dayforge/dayforge/internal/streaming"
)

func main() {
	addr := flag.String("addr", "", "listen address, overrides DAYFORGE_ADDR")
	redisAddr := flag.String("redis-addr", "", "redis address, overrides DAYFORGE_REDIS_ADDR")
	useMemory := flag.Bool("memory", false, "use the in-memory KV substrate instead of Redis (local dev only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("dayforge: config load failed: %v", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *redisAddr != "" {
		cfg.RedisAddr = *redisAddr
	}
	if cfg.JWTSecret == "" {
		log.Fatal("dayforge: DAYFORGE_JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var kv store.KV
	if *useMemory {
		log.Println("dayforge: using in-memory KV substrate (local dev mode)")
		kv = store.NewMemoryKV()
	} else {
		redisKV, err := store.NewRedisKV(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("dayforge: redis connect failed: %v", err)
		}
		log.Printf("dayforge: connected to redis at %s", cfg.RedisAddr)
		kv = redisKV
	}

	var history *store.HistoryStore
	if cfg.PostgresDSN != "" {
		history, err = store.NewHistoryStore(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("dayforge: postgres history store failed: %v", err)
		}
		defer history.Close()
		log.Println("dayforge: durable history logging enabled (postgres)")
	}

	buf := buffer.New(kv)
	energyMon := energy.New(kv)

	publisher := streaming.NewKVPublisher(kv, "dayforge")
	var generator delegation.Generator
	if cfg.OpenAIAPIKey != "" {
		generator = delegation.NewOpenAIGenerator(cfg.OpenAIAPIKey, "")
	} else {
		log.Println("dayforge: DAYFORGE_OPENAI_API_KEY unset, delegation drafts will report generation failures")
		generator = noopGenerator{}
	}
	worker := delegation.New(kv, generator, publisher, cfg.DelegationRate, cfg.DelegationBurst)
	if history != nil {
		worker.SetHistory(history)
	}
	go func() {
		if err := worker.PollApprovals(ctx); err != nil {
			log.Printf("dayforge: approval poller stopped: %v", err)
		}
	}()

	hub := relay.NewClientHub(cfg.MaxWSConnections, cfg.HeartbeatPeriod)
	go hub.Run(ctx)

	timeline := relay.NewTimeline()
	orchestrator := relay.New(buf, energyMon, worker, hub, timeline)

	bridge := relay.NewEventBridge(publisher, hub)
	go func() {
		if err := bridge.Run(ctx); err != nil {
			log.Printf("dayforge: event bridge stopped: %v", err)
		}
	}()

	profilerEngine := profiler.NewEngine(ctx, kv)

	ctxPoller := poller.New(kv, poller.NoopFetcher{}, orchestrator, cfg.CalendarInterval, cfg.MailInterval, cfg.ChatInterval)
	ctxPoller.Start(ctx)

	go runEnergyRefresh(ctx, energyMon, cfg.EnergyInterval)

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTIssuer)

	server := api.NewServer(api.Deps{
		Buffer:       buf,
		KV:           kv,
		Orchestrator: orchestrator,
		EnergyMon:    energyMon,
		Delegation:   worker,
		Profiler:     profilerEngine,
		Hub:          hub,
		Issuer:       issuer,
		History:      history,
	})

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      server.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("dayforge: listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("dayforge: http server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("dayforge: shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("dayforge: graceful shutdown failed: %v", err)
	}
}

// runEnergyRefresh recomputes and caches the current energy level on an
// interval so readers during idle periods still see a fresh value instead
// of a stale cache-last-good entry.
func runEnergyRefresh(ctx context.Context, mon *energy.Monitor, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := mon.Compute(ctx); err != nil {
				log.Printf("dayforge: energy refresh failed: %v", err)
			}
		}
	}
}

// noopGenerator is wired when no OpenAI API key is configured, so the
// Delegation Worker still runs end to end (draft stored, approval gating
// exercised) without a live external dependency in local/dev environments.
type noopGenerator struct{}

func (noopGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "", domain.NewError(domain.ErrExternalUnavailable, "no delegation content generator configured")
}
