package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"sync"
	"syscall"

	"github.com/banshee-data/elitemining/internal/api"
	"github.com/banshee-data/elitemining/internal/fsutil"
	"github.com/banshee-data/elitemining/internal/galaxy"
	"github.com/banshee-data/elitemining/internal/hotspotdb"
	"github.com/banshee-data/elitemining/internal/ingest"
	"github.com/banshee-data/elitemining/internal/journal"
	"github.com/banshee-data/elitemining/internal/materials"
	"github.com/banshee-data/elitemining/internal/paths"
	"github.com/banshee-data/elitemining/internal/ringfinder"
	"github.com/banshee-data/elitemining/internal/session"
	"github.com/banshee-data/elitemining/internal/sessionlog"
	"github.com/banshee-data/elitemining/internal/timeutil"
)

var (
	listen     = flag.String("listen", ":8765", "HTTP listen address")
	journalDir = flag.String("journal-dir", "", "Journal directory (overrides the configured path)")
	replay     = flag.Bool("replay", false, "Replay every journal from the beginning instead of skipping to live")
)

func main() {
	flag.Parse()

	fsys := fsutil.OSFileSystem{}
	p, err := paths.Resolve(fsys)
	if err != nil {
		log.Fatalf("failed to resolve data paths: %v", err)
	}

	cfgStore := paths.NewStore(fsys, p.ConfigFile)
	if err := cfgStore.Load(); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg := cfgStore.Config()

	dir := *journalDir
	if dir == "" {
		dir = cfg.GetJournalDir()
	}
	if dir == "" {
		log.Fatal("no journal directory: pass -journal-dir or set journal_dir in config.json")
	}

	tbl, err := materials.Load()
	if err != nil {
		log.Printf("material table unavailable, using built-in defaults: %v", err)
		tbl = materials.Default()
	}

	store, err := hotspotdb.Open(p.HotspotDB, tbl)
	if err != nil {
		log.Fatalf("failed to open hotspot database: %v", err)
	}
	defer store.Close()

	var gal *galaxy.DB
	if fsys.Exists(p.GalaxyDB) {
		gal, err = galaxy.Open(p.GalaxyDB)
		if err != nil {
			log.Printf("galaxy index unavailable, ring finder falls back to visited systems: %v", err)
		} else {
			defer gal.Close()
		}
	}

	// Data-quality migrations run before any ingestion so new journal rows
	// land in a normalized store.
	src := hotspotdb.MigrationSources{
		OverlapCSV:     p.OverlapCSV,
		OverlapVersion: 1,
		RESCSV:         p.RESCSV,
		RESVersion:     1,
		BundledDB:      p.BundledDB,
		BundledVersion: 1,
		FS:             fsys,
	}
	if gal != nil {
		src.Galaxy = gal
	}
	if err := store.RunDataMigrations(src); err != nil {
		log.Fatalf("data migrations failed: %v", err)
	}

	enricher := ingest.NewEnricher(nil)
	agg := session.New(timeutil.RealClock{}, tbl)
	agg.AutoStart = cfg.GetAutoStartSession()
	agg.PromptFull = cfg.GetPromptOnCargoFull()

	dispatcher := &journal.Dispatcher{
		Visits:  store,
		Rings:   &ingest.Ingestor{Store: store, Enricher: enricher},
		Session: agg,
	}

	reader := journal.NewReader(dir, nil)
	reader.StatePath = p.ScanStateFile
	// First run with auto-scan on catches up on the journal backlog; -replay
	// forces it by discarding the saved cursor.
	if *replay {
		_ = fsys.Remove(p.ScanStateFile)
	}
	if *replay || (cfg.GetAutoScanJournals() && !fsys.Exists(p.ScanStateFile)) {
		reader.Policy = journal.ReplayAll
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The reader goroutine only decodes and enqueues; the dispatcher goroutine
	// owns every downstream mutation, so the aggregator and ingestor never see
	// concurrent events.
	events := make(chan journal.Event, 256)
	reader.Handle = func(ev journal.Event) { events <- ev }

	wg.Add(1)
	go func() {
		defer wg.Done()
		reader.Run()
		close(events)
		log.Print("journal reader terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Run(events)
		log.Print("dispatcher terminated")
	}()

	server := api.NewServer(api.Config{
		Address: *listen,
		Finder:  &ringfinder.Finder{Hotspots: store, Galaxy: gal, Resolver: enricher},
		Session: agg,
		Log:     sessionlog.NewWriter(p.ReportsDir),
		Store:   store,
		Locator: dispatcher,
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(ctx); err != nil {
			log.Printf("HTTP server error: %v", err)
		}
		log.Print("HTTP server routine stopped")
	}()

	<-ctx.Done()
	reader.Stop()

	wg.Wait()
	log.Print("Graceful shutdown complete")
}
