package auth

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var shortDurationRe = regexp.MustCompile(`^(\d+)([dwh])$`)

// ParseExpiration turns a token lifetime into an absolute expiry relative
// to now. It accepts "never" or "" (no expiry), any Go duration, a short
// form such as "30d", "2w" or "12h", and a date as "yyyy-mm-dd" or
// "yyyy-mm-dd HH:MM" (UTC), which must lie in the future.
func ParseExpiration(s string, now time.Time) (*time.Time, error) {
	if s == "" || s == "never" {
		return nil, nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return nil, fmt.Errorf("expiration must be positive: %s", s)
		}
		t := now.Add(d)
		return &t, nil
	}

	if m := shortDurationRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid number in expiration: %s", s)
		}
		unit := map[string]time.Duration{"h": time.Hour, "d": 24 * time.Hour, "w": 7 * 24 * time.Hour}[m[2]]
		t := now.Add(time.Duration(n) * unit)
		return &t, nil
	}

	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			if !t.After(now) {
				return nil, fmt.Errorf("expiration date must be in the future: %s", s)
			}
			return &t, nil
		}
	}

	return nil, fmt.Errorf("invalid expiration %q (use 'never', '30d', '12h', '2026-12-25' or a Go duration)", s)
}
