// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// range selectors, path ids and JSON bodies.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"fluxo/internal/core"
	"fluxo/internal/store"
)

// maxBodyBytes caps JSON payloads; the largest legitimate body is a
// transaction with a 200 character description.
const maxBodyBytes = 64 << 10

// ParseRange reads the range selector from query parameters. Explicit
// start/end bounds win over a preset; with neither the current month is used.
func ParseRange(query url.Values, now time.Time) (core.RangeState, error) {
	startStr := strings.TrimSpace(query.Get("start"))
	endStr := strings.TrimSpace(query.Get("end"))
	if startStr != "" || endStr != "" {
		start, err := optionalDate("start", startStr)
		if err != nil {
			return core.RangeState{}, err
		}
		end, err := optionalDate("end", endStr)
		if err != nil {
			return core.RangeState{}, err
		}
		return core.CustomRange(start, end), nil
	}

	return core.NewRangeState(strings.TrimSpace(query.Get("preset")), now)
}

func optionalDate(name, s string) (*core.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s date %q: expected YYYY-MM-DD", name, s)
	}
	return &d, nil
}

// ParseType reads an optional INCOME/EXPENSE filter.
func ParseType(query url.Values) (core.TransactionType, error) {
	v := core.TransactionType(strings.ToUpper(strings.TrimSpace(query.Get("type"))))
	if v == "" || v.IsValid() {
		return v, nil
	}
	return "", fmt.Errorf("invalid type %q: must be INCOME or EXPENSE", v)
}

// ParseTransactionQuery combines the range selector and type filter.
func ParseTransactionQuery(query url.Values, now time.Time) (store.TransactionQuery, core.RangeState, error) {
	rs, err := ParseRange(query, now)
	if err != nil {
		return store.TransactionQuery{}, core.RangeState{}, err
	}
	typ, err := ParseType(query)
	if err != nil {
		return store.TransactionQuery{}, core.RangeState{}, err
	}
	return store.TransactionQuery{Range: rs.Range, Type: typ}, rs, nil
}

// ParseID reads a positive integer path parameter.
func ParseID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

// DecodeJSON reads a single JSON object into dst, rejecting unknown fields
// and trailing data.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return errors.New("request body is empty")
		case errors.As(err, &maxErr):
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// sanitizeInput removes control characters except tab, newline and carriage return.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
