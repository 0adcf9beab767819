package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/banshee-data/elitemining/internal/hotspotdb"
	"github.com/banshee-data/elitemining/internal/httputil"
)

// DefaultEnrichTimeout bounds external metadata lookups. Enrichment is
// optional; a slow or dead API must never stall ingestion.
const DefaultEnrichTimeout = 10 * time.Second

// Enricher fetches ring metadata for newly sighted rings from an EDSM-style
// bodies API. All failures are soft: the caller gets (zero, false) and moves
// on.
type Enricher struct {
	Client  httputil.HTTPClient
	BaseURL string
	Timeout time.Duration
}

// NewEnricher builds an enricher against the EDSM public API.
func NewEnricher(client httputil.HTTPClient) *Enricher {
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	return &Enricher{
		Client:  client,
		BaseURL: "https://www.edsm.net",
		Timeout: DefaultEnrichTimeout,
	}
}

type edsmRing struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Mass        float64 `json:"mass"`
	InnerRadius float64 `json:"innerRadius"`
	OuterRadius float64 `json:"outerRadius"`
}

type edsmBody struct {
	Name              string     `json:"name"`
	DistanceToArrival float64    `json:"distanceToArrival"`
	ReserveLevel      string     `json:"reserveLevel"`
	Rings             []edsmRing `json:"rings"`
}

type edsmBodiesResponse struct {
	Name   string     `json:"name"`
	Bodies []edsmBody `json:"bodies"`
}

// RingMetadata looks up the ring body of a system and assembles the store's
// metadata fields from the response.
func (e *Enricher) RingMetadata(ctx context.Context, system, body string) (hotspotdb.RingMetadata, bool) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultEnrichTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u := fmt.Sprintf("%s/api-system-v1/bodies?systemName=%s", e.BaseURL, url.QueryEscape(system))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return hotspotdb.RingMetadata{}, false
	}
	resp, err := e.Client.Do(req)
	if err != nil {
		return hotspotdb.RingMetadata{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return hotspotdb.RingMetadata{}, false
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return hotspotdb.RingMetadata{}, false
	}

	var parsed edsmBodiesResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return hotspotdb.RingMetadata{}, false
	}

	for _, b := range parsed.Bodies {
		for _, ring := range b.Rings {
			if hotspotdb.NormalizeBodyName(ring.Name, system) != body {
				continue
			}
			var md hotspotdb.RingMetadata
			if ring.Type != "" {
				t := ring.Type
				md.RingType = &t
			}
			if b.DistanceToArrival > 0 {
				ls := b.DistanceToArrival
				md.LSDistance = &ls
			}
			if ring.InnerRadius > 0 {
				v := ring.InnerRadius
				md.InnerRadius = &v
			}
			if ring.OuterRadius > 0 {
				v := ring.OuterRadius
				md.OuterRadius = &v
			}
			if ring.Mass > 0 {
				v := ring.Mass
				md.Mass = &v
			}
			if d := RingDensity(ring.Mass, ring.InnerRadius, ring.OuterRadius); d != nil {
				dens := hotspotdb.NumericDensity(*d)
				md.Density = &dens
			}
			// EDSM reports the reserve level as the bare tag.
			switch hotspotdb.Reserve(b.ReserveLevel) {
			case hotspotdb.ReservePristine, hotspotdb.ReserveMajor, hotspotdb.ReserveCommon,
				hotspotdb.ReserveLow, hotspotdb.ReserveDepleted:
				dens := hotspotdb.ReserveDensity(hotspotdb.Reserve(b.ReserveLevel))
				md.Density = &dens
			}
			return md, true
		}
	}
	return hotspotdb.RingMetadata{}, false
}

type edsmSystemResponse struct {
	Name   string `json:"name"`
	Coords *struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		Z float64 `json:"z"`
	} `json:"coords"`
}

// SystemCoords resolves a system position the local stores do not know. It
// satisfies the ring finder's resolver interface; failures report not-found.
func (e *Enricher) SystemCoords(name string) (hotspotdb.Coords, bool) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultEnrichTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	u := fmt.Sprintf("%s/api-v1/system?systemName=%s&showCoordinates=1", e.BaseURL, url.QueryEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return hotspotdb.Coords{}, false
	}
	resp, err := e.Client.Do(req)
	if err != nil {
		return hotspotdb.Coords{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return hotspotdb.Coords{}, false
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return hotspotdb.Coords{}, false
	}

	var parsed edsmSystemResponse
	if err := json.Unmarshal(data, &parsed); err != nil || parsed.Coords == nil {
		return hotspotdb.Coords{}, false
	}
	return hotspotdb.Coords{X: parsed.Coords.X, Y: parsed.Coords.Y, Z: parsed.Coords.Z}, true
}
