package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rawblock/dag-consensus/internal/api"
	"github.com/rawblock/dag-consensus/internal/consensus"
	"github.com/rawblock/dag-consensus/internal/feed"
	"github.com/rawblock/dag-consensus/internal/pgstore"
	"github.com/rawblock/dag-consensus/internal/pubsub"
	"github.com/rawblock/dag-consensus/internal/quarantine"
	"github.com/rawblock/dag-consensus/pkg/dag"
)

// store is the surface cmd/engine needs from whichever Storage backend it
// picks at startup: the consensus core's own interface, plus the
// AddRecord registration step every Driver.Update caller must perform
// first.
type store interface {
	consensus.Storage
	AddRecord(r *dag.Record) error
}

func main() {
	log.Println("Starting DAG consensus engine...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := quarantine.New(parseSoftVoidedIDs(os.Getenv("SOFT_VOIDED_TX_IDS"))...)
	log.Printf("quarantine registry seeded with %d hash(es)", reg.Size())

	storage, closeStorage := setupStorage(ctx)
	defer closeStorage()

	hub := pubsub.NewHub()
	go hub.Run()

	engine := consensus.NewEngine(storage, consensus.Config{
		SoftVoidFilter: consensus.NewSoftVoidFilter(reg),
		SlowAsserts:    os.Getenv("SLOW_ASSERTS") == "true",
	})
	driver := consensus.NewDriver(storage, engine, hub)

	startFeed(ctx, storage, driver)

	router := api.SetupRouter(storage, reg, hub)
	port := getEnvOrDefault("PORT", "5339")
	srv := &http.Server{Addr: ":" + port, Handler: router}

	go func() {
		log.Printf("engine listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("error during server shutdown: %v", err)
	}
}

// setupStorage returns a pgstore.Store write-through to Postgres when
// DATABASE_URL is set, or a bare in-memory consensus.MemStorage otherwise.
func setupStorage(ctx context.Context) (s store, closeFn func()) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Println("DATABASE_URL not set; running with in-memory storage only")
		return consensus.NewMemStorage(), func() {}
	}

	pg, err := pgstore.Connect(ctx, dbURL)
	if err != nil {
		log.Printf("warning: failed to connect to PostgreSQL, falling back to in-memory storage: %v", err)
		return consensus.NewMemStorage(), func() {}
	}
	if err := pg.InitSchema(ctx); err != nil {
		log.Printf("warning: schema init failed: %v", err)
	}
	return pg, pg.Close
}

// startFeed wires an optional upstream Bitcoin-RPC-shaped feed. Absent
// credentials, the engine still serves its API and accepts records
// pushed through some other producer; it does not refuse to start for
// lack of one.
func startFeed(ctx context.Context, storage store, driver *consensus.Driver) {
	host := os.Getenv("BTC_RPC_HOST")
	user := os.Getenv("BTC_RPC_USER")
	pass := os.Getenv("BTC_RPC_PASS")
	if host == "" || user == "" || pass == "" {
		log.Println("BTC_RPC_HOST/USER/PASS not fully set; feed poller disabled")
		return
	}

	client, err := feed.NewClient(feed.Config{Host: host, User: user, Pass: pass})
	if err != nil {
		log.Printf("warning: failed to connect upstream feed: %v", err)
		return
	}

	poller := feed.NewPoller(client, storage, driver)
	var startHeight int64
	go poller.Run(ctx, startHeight, 10*time.Second)
}

// parseSoftVoidedIDs parses a comma-separated list of hex transaction
// hashes, skipping and logging any that fail to parse rather than
// aborting startup over one bad entry.
func parseSoftVoidedIDs(raw string) []dag.Hash {
	if raw == "" {
		return nil
	}
	var out []dag.Hash
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		h, err := dag.HashFromHex(s)
		if err != nil {
			log.Printf("warning: skipping invalid SOFT_VOIDED_TX_IDS entry %q: %v", s, err)
			continue
		}
		out = append(out, h)
	}
	return out
}

func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
