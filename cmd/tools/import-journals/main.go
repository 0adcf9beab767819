// Command import-journals runs a one-shot catch-up import: every journal in a
// directory is pushed through the full dispatch/ingest stack into the hotspot
// database. Interrupting the run keeps the rows already inserted.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/banshee-data/elitemining/internal/fsutil"
	"github.com/banshee-data/elitemining/internal/hotspotdb"
	"github.com/banshee-data/elitemining/internal/ingest"
	"github.com/banshee-data/elitemining/internal/journal"
	"github.com/banshee-data/elitemining/internal/materials"
	"github.com/banshee-data/elitemining/internal/paths"
)

var (
	journalDir = flag.String("journal-dir", "", "Journal directory to import (required)")
	dbPath     = flag.String("db", "", "Hotspot database path (defaults to the app data dir)")
	enrich     = flag.Bool("enrich", false, "Fetch ring metadata for new rings from EDSM during the import")
)

func main() {
	flag.Parse()

	if *journalDir == "" {
		log.Fatal("-journal-dir is required")
	}

	fsys := fsutil.OSFileSystem{}
	target := *dbPath
	if target == "" {
		p, err := paths.Resolve(fsys)
		if err != nil {
			log.Fatalf("failed to resolve data paths: %v", err)
		}
		target = p.HotspotDB
	}

	tbl, err := materials.Load()
	if err != nil {
		tbl = materials.Default()
	}
	store, err := hotspotdb.Open(target, tbl)
	if err != nil {
		log.Fatalf("failed to open hotspot database %s: %v", target, err)
	}
	defer store.Close()

	ingestor := &ingest.Ingestor{Store: store}
	if *enrich {
		ingestor.Enricher = ingest.NewEnricher(nil)
	}
	dispatcher := &journal.Dispatcher{Visits: store, Rings: ingestor}

	scanner := journal.NewScanner(*journalDir, dispatcher.Dispatch)
	scanner.Progress = func(name string, index, total int) {
		log.Printf("[%d/%d] %s", index, total, name)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := scanner.Run(ctx); err != nil {
		log.Fatalf("import stopped: %v", err)
	}

	stats, err := store.GetDatabaseStats()
	if err != nil {
		log.Fatalf("import finished but stats unavailable: %v", err)
	}
	log.Printf("import complete: %d hotspot rows, %d visited systems", stats.HotspotRows, stats.VisitedSystems)
}
