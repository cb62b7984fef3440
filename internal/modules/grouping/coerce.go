package grouping

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ParseNumber reads a loosely typed JSON value as a float.
// null and blank strings are missing (nil, false). Values that cannot be read
// default to 0 and report coerced == true so the caller can flag them.
// Strings may carry currency symbols, thousands separators, or a trailing %.
func ParseNumber(raw json.RawMessage) (value *float64, coerced bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, false
	}

	zero := 0.0
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return &zero, true
		}
		return &n, false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return &zero, true
	}
	return parseNumericString(s)
}

func parseNumericString(s string) (*float64, bool) {
	zero := 0.0
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}

	percent := strings.HasSuffix(s, "%")
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '$', '€', '£', ',', '%', ' ':
			return -1
		}
		return r
	}, s)

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return &zero, true
	}
	if percent {
		v /= 100
	}
	return &v, false
}

// normalizeQuality maps scores given as 0–100 onto [0,1] and clamps the rest.
// clamped reports a value that was outside both ranges.
func normalizeQuality(v *float64) (out *float64, clamped bool) {
	if v == nil {
		return nil, false
	}
	q := *v
	if q > 1 && q <= 100 {
		q /= 100
	}
	if q < 0 {
		q, clamped = 0, true
	} else if q > 1 {
		q, clamped = 1, true
	}
	return &q, clamped
}
