package api

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// coordinate accepts both JSON forms clients actually send: a number
// (43.65) or a numeric string ("43.65"). Non-finite values are rejected at
// parse time; range checks happen in the enrichment layer.
type coordinate float64

func (c *coordinate) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		return fmt.Errorf("missing coordinate")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid coordinate %q", s)
	}
	// ParseFloat accepts "NaN" and "Inf" spellings inside strings.
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("coordinate must be finite")
	}

	*c = coordinate(v)
	return nil
}

// parseCoordinate handles form-field coordinates from multipart requests.
func parseCoordinate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("missing coordinate")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid coordinate %q", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("coordinate must be finite")
	}
	return v, nil
}
