// Command build-galaxy bundles a system-coordinate CSV into the read-only
// galaxy database the ring finder pre-filters with. The input format is the
// common community dump shape: name,x,y,z with a header row.
package main

import (
	"encoding/csv"
	"flag"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/banshee-data/elitemining/internal/galaxy"
)

var (
	input  = flag.String("in", "", "Systems CSV (name,x,y,z) to import (required)")
	output = flag.String("out", "galaxy.db", "Galaxy database to create")
)

func main() {
	flag.Parse()

	if *input == "" {
		log.Fatal("-in is required")
	}

	f, err := os.Open(*input)
	if err != nil {
		log.Fatalf("failed to open %s: %v", *input, err)
	}
	defer f.Close()

	db, err := galaxy.Create(*output)
	if err != nil {
		log.Fatalf("failed to create %s: %v", *output, err)
	}
	defer db.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 4

	header := true
	var count, skipped int
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("failed to read %s: %v", *input, err)
		}
		if header {
			header = false
			continue
		}

		x, errX := strconv.ParseFloat(rec[1], 64)
		y, errY := strconv.ParseFloat(rec[2], 64)
		z, errZ := strconv.ParseFloat(rec[3], 64)
		if rec[0] == "" || errX != nil || errY != nil || errZ != nil {
			skipped++
			continue
		}
		if err := db.InsertSystem(galaxy.System{Name: rec[0], X: x, Y: y, Z: z}); err != nil {
			log.Fatalf("failed to insert %s: %v", rec[0], err)
		}
		count++
		if count%100000 == 0 {
			log.Printf("%d systems imported", count)
		}
	}

	log.Printf("done: %d systems imported, %d rows skipped", count, skipped)
}
