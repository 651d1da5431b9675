// Package gazetteer provides fuzzy, multi-script city search over a static
// world-cities dataset. It powers location autocomplete: a free-text query in
// Latin script, pinyin, or Chinese characters is resolved to ranked city
// records with geographic coordinates.
package gazetteer

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/golang/geo/s2"
)

//go:embed data/world-cities.json
var bundledCities []byte

// CityRecord is one entry of the gazetteer. Records are immutable once loaded.
type CityRecord struct {
	Name           string  `json:"name"`
	Country        string  `json:"country"`
	Subcountry     string  `json:"subcountry,omitempty"`
	GeonameID      int64   `json:"geonameid,omitempty"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	AlternateNames string  `json:"alternatenames,omitempty"`
}

// indexedCity pairs a record with its precomputed match tokens.
// tokens and phonetic are positionally parallel: phonetic[i] is the
// transliteration of the same source field as tokens[i].
type indexedCity struct {
	record   CityRecord
	tokens   []string
	phonetic []string
}

// Loader produces the raw city records for a Gazetteer. It runs at most once
// per Gazetteer value.
type Loader func() ([]CityRecord, error)

// Transliterator converts a string in any script to a Latin-alphabet phonetic
// rendering: no tone or diacritic marks, no whitespace, lowercase. Latin input
// passes through (minus whitespace and diacritics).
type Transliterator func(string) string

// DefaultLimit is the number of results returned when the caller has no
// stronger preference.
const DefaultLimit = 8

// DefaultHomeCountry is the country marker that receives a small relevance
// boost. It matches case-insensitively as a substring of a record's country.
const DefaultHomeCountry = "china"

type config struct {
	loader      Loader
	translit    Transliterator
	homeCountry string
	logger      *slog.Logger
}

// Option configures a Gazetteer.
type Option func(*config)

// WithLoader replaces the bundled dataset with a custom source.
func WithLoader(l Loader) Option {
	return func(c *config) { c.loader = l }
}

// WithDataset is shorthand for a Loader over a fixed record slice.
func WithDataset(records []CityRecord) Option {
	return func(c *config) {
		c.loader = func() ([]CityRecord, error) { return records, nil }
	}
}

// WithTransliterator replaces the default pinyin transliterator.
func WithTransliterator(t Transliterator) Option {
	return func(c *config) { c.translit = t }
}

// WithHomeCountry sets the country marker boosted during scoring.
// An empty string disables the boost.
func WithHomeCountry(marker string) Option {
	return func(c *config) { c.homeCountry = strings.ToLower(marker) }
}

// WithLogger sets the logger used for load events.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// Gazetteer is a read-only city search index. The dataset is loaded lazily on
// first use; after that every operation is a pure read. Safe for concurrent
// use.
type Gazetteer struct {
	cfg config

	loadOnce  sync.Once
	loadErr   error
	cities    []indexedCity
	cellIndex map[s2.CellID][]int
}

// New returns a Gazetteer over the bundled world-cities dataset unless a
// different loader is configured. No data is read until the first query.
func New(opts ...Option) *Gazetteer {
	cfg := config{
		loader:      loadBundledCities,
		translit:    Phonetic,
		homeCountry: DefaultHomeCountry,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Gazetteer{cfg: cfg}
}

func loadBundledCities() ([]CityRecord, error) {
	var records []CityRecord
	if err := json.Unmarshal(bundledCities, &records); err != nil {
		return nil, fmt.Errorf("parsing bundled city data: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("bundled city data is empty")
	}
	return records, nil
}

// ensureLoaded builds the index exactly once. Concurrent first-time callers
// block on the same load; later callers see either the built index or the
// cached load error. The index fields are assigned only after the whole
// dataset has been tokenized, so a failed load leaves no partial state.
func (g *Gazetteer) ensureLoaded() error {
	g.loadOnce.Do(func() {
		records, err := g.cfg.loader()
		if err != nil {
			g.loadErr = fmt.Errorf("loading gazetteer: %w", err)
			g.cfg.logger.Error("gazetteer load failed", "error", g.loadErr)
			return
		}

		cities := make([]indexedCity, len(records))
		for i, rec := range records {
			cities[i] = g.indexCity(rec)
		}

		cellIndex := make(map[s2.CellID][]int)
		for i, c := range cities {
			ll := s2.LatLngFromDegrees(c.record.Latitude, c.record.Longitude)
			cell := s2.CellIDFromLatLng(ll).Parent(s2CellLevel)
			cellIndex[cell] = append(cellIndex[cell], i)
		}

		g.cities = cities
		g.cellIndex = cellIndex
		g.cfg.logger.Info("gazetteer loaded", "cities", len(cities))
	})
	return g.loadErr
}

// Records returns a copy of the loaded city records, triggering the load if
// needed. Mainly useful for diagnostics and tests.
func (g *Gazetteer) Records() ([]CityRecord, error) {
	if err := g.ensureLoaded(); err != nil {
		return nil, err
	}
	records := make([]CityRecord, len(g.cities))
	for i, c := range g.cities {
		records[i] = c.record
	}
	return records, nil
}
