// Package geo holds the operator's current location fix and the distance
// helper used to compare it with a recorded position.
package geo

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

// EarthRadius is the mean Earth radius in metres.
const EarthRadius = 6371e3

// ErrBadFix is returned for unparsable or out-of-range fixes.
var ErrBadFix = errors.New("geo: bad fix")

// Fix is one location reading.
type Fix struct {
	Lat       float64
	Lon       float64
	Accuracy  float64 // metres, 0 when unknown
	Timestamp time.Time
}

// Valid reports whether the coordinates are finite and in range.
func (f Fix) Valid() bool {
	return !math.IsNaN(f.Lat) && !math.IsNaN(f.Lon) &&
		f.Lat >= -90 && f.Lat <= 90 && f.Lon >= -180 && f.Lon <= 180
}

// Age returns how old the fix is relative to now.
func (f Fix) Age(now time.Time) time.Duration {
	if f.Timestamp.IsZero() {
		return 0
	}
	return now.Sub(f.Timestamp)
}

// Distance returns the great-circle distance in metres between two points
// given in degrees.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(rad(lat1))*math.Cos(rad(lat2))
	return EarthRadius * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Tracker holds the latest fix and notifies listeners of new ones. It is
// safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	fix       Fix
	has       bool
	nextID    int
	listeners map[int]func(Fix)
}

// NewTracker creates a tracker with no fix.
func NewTracker() *Tracker {
	return &Tracker{listeners: make(map[int]func(Fix))}
}

// Update records f and calls every listener with it, outside the lock.
func (t *Tracker) Update(f Fix) error {
	if !f.Valid() {
		return fmt.Errorf("%w: %v,%v", ErrBadFix, f.Lat, f.Lon)
	}
	t.mu.Lock()
	t.fix, t.has = f, true
	ls := make([]func(Fix), 0, len(t.listeners))
	for _, l := range t.listeners {
		ls = append(ls, l)
	}
	t.mu.Unlock()
	for _, l := range ls {
		l(f)
	}
	return nil
}

// Current returns the latest fix, if any.
func (t *Tracker) Current() (Fix, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fix, t.has
}

// Subscribe registers fn for future fixes and returns a function that
// removes it. Registrations do not replace each other.
func (t *Tracker) Subscribe(fn func(Fix)) (cancel func()) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = fn
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

// ParseFix parses "lat,lon" or "lat,lon,accuracy".
func ParseFix(s string) (Fix, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) < 2 || len(parts) > 3 {
		return Fix{}, fmt.Errorf("%w: %q", ErrBadFix, s)
	}
	vals := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Fix{}, fmt.Errorf("%w: %q: %v", ErrBadFix, s, err)
		}
		vals[i] = v
	}
	f := Fix{Lat: vals[0], Lon: vals[1]}
	if len(vals) == 3 {
		f.Accuracy = vals[2]
	}
	if !f.Valid() {
		return Fix{}, fmt.Errorf("%w: %q out of range", ErrBadFix, s)
	}
	return f, nil
}

// ReadFixes feeds t with one fix per line of r (for example the output of
// a GPS daemon piped into the console) until r ends or ctx is done. Blank
// lines and lines starting with '#' are skipped; bad lines are returned to
// onErr, if set, and otherwise ignored.
func ReadFixes(ctx context.Context, r io.Reader, t *Tracker, onErr func(error)) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		f, err := ParseFix(line)
		if err == nil {
			f.Timestamp = time.Now()
			err = t.Update(f)
		}
		if err != nil && onErr != nil {
			onErr(err)
		}
	}
	return sc.Err()
}
