package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"incomes/internal/core"
	"incomes/internal/log"
	"incomes/internal/storage"
)

// parseFilter builds a structured filter from company, name, from and to
// query parameters. Dates use any layout the normalizer accepts.
func parseFilter(q url.Values) (storage.Filter, error) {
	f := storage.Filter{
		Company: sanitizeInput(q.Get("company")),
		Name:    sanitizeInput(q.Get("name")),
	}
	for _, p := range []struct {
		key string
		dst *core.Date
	}{{"from", &f.From}, {"to", &f.To}} {
		v := sanitizeInput(q.Get(p.key))
		if v == "" {
			continue
		}
		d, ok := core.ParseDate(v)
		if !ok {
			return storage.Filter{}, fmt.Errorf("invalid %s date %q", p.key, v)
		}
		*p.dst = d
	}
	if !f.From.IsNull() && !f.To.IsNull() && f.To.Before(f.From.Time) {
		return storage.Filter{}, fmt.Errorf("from %s is after to %s", f.From, f.To)
	}
	return f, nil
}

// sanitizeInput trims whitespace and drops control characters.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Default().WithComponent(log.ComponentHTTP).Warn("Failed to write response", log.FieldError, err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
