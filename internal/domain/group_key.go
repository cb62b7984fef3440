// Package domain provides core domain models and types.
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Dimension is an optional group-key value. The zero value is absent.
type Dimension struct {
	Value string `json:"value" msgpack:"v"`
	Valid bool   `json:"valid" msgpack:"ok"`
}

// Dim returns a present dimension. Blank input yields an absent dimension.
func Dim(value string) Dimension {
	value = strings.TrimSpace(value)
	if value == "" {
		return Dimension{}
	}
	return Dimension{Value: value, Valid: true}
}

// String returns the value or an empty string when absent
func (d Dimension) String() string {
	if !d.Valid {
		return ""
	}
	return d.Value
}

// MarshalJSON encodes an absent dimension as null and a present one as a string
func (d Dimension) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(d.Value)
}

// UnmarshalJSON accepts null, a string, or a number
func (d *Dimension) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*d = Dimension{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*d = Dim(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("failed to decode dimension %s: %w", string(data), err)
	}
	*d = Dim(n.String())
	return nil
}

// FacilityPrefix normalizes a facility to its uppercase 4-character prefix
func FacilityPrefix(facility string) string {
	f := strings.ToUpper(strings.TrimSpace(facility))
	if r := []rune(f); len(r) > 4 {
		f = string(r[:4])
	}
	return f
}

// GroupKey identifies an allocation group. It is comparable and used directly as a map key.
// Lane, Period and Category are always present; the rest are optional.
type GroupKey struct {
	Lane     string    `json:"lane" msgpack:"lane"`
	Period   int       `json:"period" msgpack:"period"`
	Category string    `json:"category" msgpack:"category"`
	Facility Dimension `json:"facility" msgpack:"facility"`
	Terminal Dimension `json:"terminal" msgpack:"terminal"`
	Port     Dimension `json:"port" msgpack:"port"`
	SSL      Dimension `json:"ssl" msgpack:"ssl"`
	Vessel   Dimension `json:"vessel" msgpack:"vessel"`
}

// LaneKey scopes the zero-sum rule
type LaneKey struct {
	Period int
	Lane   string
}

// LaneKey returns the (period, lane) pair this group belongs to
func (k GroupKey) LaneKey() LaneKey {
	return LaneKey{Period: k.Period, Lane: k.Lane}
}

// String renders the key for logs and notes
func (k GroupKey) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s/W%d/%s", k.Lane, k.Period, k.Category)
	for _, d := range []struct {
		name string
		dim  Dimension
	}{
		{"facility", k.Facility},
		{"terminal", k.Terminal},
		{"port", k.Port},
		{"ssl", k.SSL},
		{"vessel", k.Vessel},
	} {
		if d.dim.Valid {
			fmt.Fprintf(&b, " %s=%s", d.name, d.dim.Value)
		}
	}
	return b.String()
}

// Less orders keys deterministically (lane, period, category, then optional dimensions)
func (k GroupKey) Less(o GroupKey) bool {
	if k.Lane != o.Lane {
		return k.Lane < o.Lane
	}
	if k.Period != o.Period {
		return k.Period < o.Period
	}
	if k.Category != o.Category {
		return k.Category < o.Category
	}
	a := []Dimension{k.Facility, k.Terminal, k.Port, k.SSL, k.Vessel}
	b := []Dimension{o.Facility, o.Terminal, o.Port, o.SSL, o.Vessel}
	for i := range a {
		if a[i] == b[i] {
			continue
		}
		if a[i].Valid != b[i].Valid {
			return !a[i].Valid
		}
		return a[i].Value < b[i].Value
	}
	return false
}
