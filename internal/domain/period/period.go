// Package period maps instants to reset-period keys.
//
// A period key is the civil date on which the period containing an instant
// began, evaluated in the configured reset time zone. Daily periods start at
// local midnight, weekly periods at local midnight of the anchor weekday and
// monthly periods at local midnight of the first day of the month.
package period

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

const keyLayout = "2006-01-02"

// Cadence is how often a boss resets.
type Cadence string

// Supported cadences.
const (
	Daily   Cadence = "daily"
	Weekly  Cadence = "weekly"
	Monthly Cadence = "monthly"
)

// ParseCadence parses a cadence name (case-insensitive).
func ParseCadence(s string) (Cadence, error) {
	switch c := Cadence(strings.ToLower(strings.TrimSpace(s))); c {
	case Daily, Weekly, Monthly:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCadence, s)
	}
}

// Valid reports whether c is a supported cadence.
func (c Cadence) Valid() bool {
	_, err := ParseCadence(string(c))
	return err == nil
}

// ParseWeekday parses an English weekday name such as "thursday" or "thu".
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("%w: %q", ErrUnknownWeekday, s)
}

// Key is a civil date identifying one reset period.
type Key struct {
	Year  int
	Month time.Month
	Day   int
}

// KeyOf returns the civil date of t in t's own location.
func KeyOf(t time.Time) Key {
	y, m, d := t.Date()
	return Key{Year: y, Month: m, Day: d}
}

// ParseKey parses a YYYY-MM-DD key.
func ParseKey(s string) (Key, error) {
	t, err := time.Parse(keyLayout, strings.TrimSpace(s))
	if err != nil {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	return KeyOf(t), nil
}

func (k Key) String() string {
	if k.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", k.Year, int(k.Month), k.Day)
}

// IsZero reports whether k is the zero key.
func (k Key) IsZero() bool { return k == Key{} }

// Midnight returns the start of the key's date in loc.
func (k Key) Midnight(loc *time.Location) time.Time {
	return time.Date(k.Year, k.Month, k.Day, 0, 0, 0, 0, loc)
}

// AddDays shifts the key by n civil days.
func (k Key) AddDays(n int) Key {
	return KeyOf(time.Date(k.Year, k.Month, k.Day+n, 12, 0, 0, 0, time.UTC))
}

// Before reports whether k is an earlier date than o.
func (k Key) Before(o Key) bool {
	if k.Year != o.Year {
		return k.Year < o.Year
	}
	if k.Month != o.Month {
		return k.Month < o.Month
	}
	return k.Day < o.Day
}

// MarshalText implements encoding.TextMarshaler.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Key) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*k = Key{}
		return nil
	}
	parsed, err := ParseKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Value implements driver.Valuer.
func (k Key) Value() (driver.Value, error) {
	if k.IsZero() {
		return nil, nil
	}
	return k.String(), nil
}

// Scan implements sql.Scanner for DATE columns.
func (k *Key) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*k = Key{}
		return nil
	case time.Time:
		*k = KeyOf(v)
		return nil
	case []byte:
		return k.UnmarshalText(v)
	case string:
		return k.UnmarshalText([]byte(v))
	default:
		return fmt.Errorf("%w: cannot scan %T", ErrInvalidKey, src)
	}
}

// Resolver computes period keys for a fixed reset time zone and weekly anchor.
type Resolver struct {
	loc    *time.Location
	anchor time.Weekday
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLocation sets the reset time zone.
func WithLocation(loc *time.Location) Option {
	return func(r *Resolver) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// WithAnchor sets the weekday on which weekly periods start.
func WithAnchor(day time.Weekday) Option {
	return func(r *Resolver) {
		r.anchor = day
	}
}

// NewResolver returns a resolver defaulting to UTC with a Thursday anchor.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{loc: time.UTC, anchor: time.Thursday}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Location returns the reset time zone.
func (r *Resolver) Location() *time.Location { return r.loc }

// Anchor returns the weekly anchor weekday.
func (r *Resolver) Anchor() time.Weekday { return r.anchor }

// Resolve returns the key of the period of cadence c containing t.
func (r *Resolver) Resolve(c Cadence, t time.Time) (Key, error) {
	local := KeyOf(t.In(r.loc))
	switch c {
	case Daily:
		return local, nil
	case Weekly:
		wd := time.Date(local.Year, local.Month, local.Day, 12, 0, 0, 0, time.UTC).Weekday()
		offset := (int(wd) - int(r.anchor) + 7) % 7
		return local.AddDays(-offset), nil
	case Monthly:
		return Key{Year: local.Year, Month: local.Month, Day: 1}, nil
	default:
		return Key{}, fmt.Errorf("%w: %q", ErrUnknownCadence, string(c))
	}
}

// Bounds returns the half-open interval [start, end) covered by key k.
func (r *Resolver) Bounds(c Cadence, k Key) (time.Time, time.Time, error) {
	start := k.Midnight(r.loc)
	switch c {
	case Daily:
		return start, time.Date(k.Year, k.Month, k.Day+1, 0, 0, 0, 0, r.loc), nil
	case Weekly:
		return start, time.Date(k.Year, k.Month, k.Day+7, 0, 0, 0, 0, r.loc), nil
	case Monthly:
		return start, time.Date(k.Year, k.Month+1, k.Day, 0, 0, 0, 0, r.loc), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrUnknownCadence, string(c))
	}
}
