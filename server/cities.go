package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/luckystar-app/luckystar"
)

func (b *Backend) cityRoutes() chi.Router {
	r := chi.NewRouter()

	r.Get("/search", WrapRestHandler(b.SearchCities))
	r.Get("/resolve", WrapRestHandler(b.ResolveCity))
	r.Get("/nearest", WrapRestHandler(b.NearestCity))

	return r
}

// SearchCities serves location autocomplete. An empty query yields an empty
// list; a dataset load failure is a 500, so the caller can tell "no data"
// from "no matches".
func (b *Backend) SearchCities(r *http.Request) (any, error) {
	query := r.URL.Query().Get("query")

	limit := gazetteer.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return nil, CodedError(fmt.Errorf("invalid limit %q: %w", raw, err), http.StatusBadRequest)
		}
		limit = parsed
	}

	results, err := b.gaz.Search(query, limit)
	if err != nil {
		return nil, CodedError(err, http.StatusInternalServerError)
	}
	if results == nil {
		results = []gazetteer.CityRecord{}
	}
	return results, nil
}

// ResolveCity returns the single best match for a typed location string, the
// fallback used when the user never picked a suggestion.
func (b *Backend) ResolveCity(r *http.Request) (any, error) {
	query := r.URL.Query().Get("query")

	city, ok, err := b.gaz.Resolve(query)
	if err != nil {
		return nil, CodedError(err, http.StatusInternalServerError)
	}
	if !ok {
		return nil, CodedError(fmt.Errorf("no city matches %q", query), http.StatusNotFound)
	}
	return city, nil
}

// NearestCity labels manually entered coordinates with the closest city.
func (b *Backend) NearestCity(r *http.Request) (any, error) {
	lat, err := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if err != nil {
		return nil, CodedError(fmt.Errorf("invalid lat: %w", err), http.StatusBadRequest)
	}
	lng, err := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if err != nil {
		return nil, CodedError(fmt.Errorf("invalid lng: %w", err), http.StatusBadRequest)
	}

	city, ok, err := b.gaz.Nearest(lat, lng)
	if err != nil {
		return nil, CodedError(err, http.StatusInternalServerError)
	}
	if !ok {
		return nil, CodedError(fmt.Errorf("no city near %v,%v", lat, lng), http.StatusNotFound)
	}
	return city, nil
}
