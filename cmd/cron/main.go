package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"broker-api/internal/cli"
	"broker-api/internal/config"
	"broker-api/internal/svc"
)

const (
	defaultInterval = time.Minute      // Ingestion cadence when config omits one
	shutdownTimeout = 10 * time.Second // Grace period for shutdown
)

var configFile = flag.String("f", "etc/broker.yaml", "the config file")

func main() {
	flag.Parse()
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("[main] Starting price ingestion cron...")

	appCfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("[main] Failed to load app config: %v", err)
	}
	appCfg.MustSetUp()

	log.Printf("[main] Configuration loaded:")
	for _, line := range cli.ConfigSummaryLines(appCfg) {
		log.Printf("  - %s", line)
	}

	svcCtx := svc.NewServiceContext(*appCfg)
	if svcCtx.Ingest == nil {
		log.Fatalf("[main] Ingestion not configured: needs Postgres DSN and a pricefeed section")
	}

	interval := defaultInterval
	if svcCtx.PricefeedConfig != nil && svcCtx.PricefeedConfig.Interval > 0 {
		interval = svcCtx.PricefeedConfig.Interval
	}
	log.Printf("  - Tracked symbols: %v", svcCtx.Ingest.Symbols())
	log.Printf("  - Ingestion interval: %s", interval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runIngestLoop(ctx, svcCtx, interval)
	}()

	log.Println("[main] Ingestion cron started. Press Ctrl+C to stop.")

	<-ctx.Done()
	log.Println("[main] Shutdown signal received, stopping tasks...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[main] All tasks stopped cleanly")
	case <-shutdownCtx.Done():
		log.Println("[main] Shutdown timeout exceeded, forcing exit")
	}

	log.Println("[main] Ingestion cron stopped")
}

// runIngestLoop drives one ingestion cycle per tick until cancelled.
func runIngestLoop(ctx context.Context, svcCtx *svc.ServiceContext, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run once immediately on startup
	runCycle(ctx, svcCtx)

	for {
		select {
		case <-ctx.Done():
			log.Println("[ingest] Stopping ingestion loop")
			return
		case <-ticker.C:
			runCycle(ctx, svcCtx)
		}
	}
}

func runCycle(parentCtx context.Context, svcCtx *svc.ServiceContext) {
	if parentCtx.Err() != nil {
		return
	}

	start := time.Now()
	result := svcCtx.Ingest.RunCycle(parentCtx)
	elapsed := time.Since(start)

	if result.Skipped > 0 {
		for symbol, reason := range result.Errors {
			log.Printf("[ingest.%s] [ERROR] %s", symbol, reason)
		}
	}
	log.Printf("[ingest.cycle] [OK] recorded=%d skipped=%d purged=%d, took %dms",
		result.Recorded, result.Skipped, result.Purged, elapsed.Milliseconds())
}
