package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/luckystar-app/luckystar/astro"
)

func validSign(name string) bool {
	for _, s := range astro.ZodiacSigns {
		if s.Name == name || s.English == name {
			return true
		}
	}
	return false
}

// canonicalSign maps an English sign name to its display name; display names
// pass through.
func canonicalSign(name string) string {
	for _, s := range astro.ZodiacSigns {
		if s.English == name {
			return s.Name
		}
	}
	return name
}

// ListSigns returns the zodiac table.
func (b *Backend) ListSigns(_ *http.Request) (any, error) {
	return astro.ZodiacSigns, nil
}

// GetDailyFortune returns today's fortune for a sun sign.
func (b *Backend) GetDailyFortune(r *http.Request) (any, error) {
	sign := chi.URLParam(r, "sign")
	if !validSign(sign) {
		return nil, CodedError(fmt.Errorf("unknown sign %q", sign), http.StatusBadRequest)
	}
	return astro.DailyFortune(canonicalSign(sign), time.Now()), nil
}

// GetTransits returns the transit outlook for a sun sign over a span
// (week, month, or year).
func (b *Backend) GetTransits(r *http.Request) (any, error) {
	sign := chi.URLParam(r, "sign")
	if !validSign(sign) {
		return nil, CodedError(fmt.Errorf("unknown sign %q", sign), http.StatusBadRequest)
	}

	span := astro.TransitSpan(r.URL.Query().Get("span"))
	switch span {
	case astro.SpanWeek, astro.SpanMonth, astro.SpanYear:
	case "":
		span = astro.SpanWeek
	default:
		return nil, CodedError(fmt.Errorf("unknown span %q", span), http.StatusBadRequest)
	}

	return astro.Transits(canonicalSign(sign), span), nil
}
