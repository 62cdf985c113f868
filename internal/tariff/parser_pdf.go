package tariff

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

var (
	// "0-75 units: 4.50", "76 - 200 kWh @ Tk 5.5", "201 to 300 units 6.50"
	rangeSlabRe = regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?)\s*(?:-|–|to)\s*(\d+(?:\.\d+)?)\s*(?:units?|kwh)?\s*[:@=]?\s*(?:tk\.?|taka|৳)?\s*(\d+(?:\.\d+)?)`)
	// "400+ units: 11.00", "above 400 units 11"
	openSlabRe = regexp.MustCompile(`(?i)^\s*(?:(\d+(?:\.\d+)?)\s*\+|(?:above|over)\s+(\d+(?:\.\d+)?))\s*(?:units?|kwh)?\s*[:@=]?\s*(?:tk\.?|taka|৳)?\s*(\d+(?:\.\d+)?)`)
)

// ParseSchedulePDF extracts text from a tariff PDF and delegates to
// ParseScheduleText.
func ParseSchedulePDF(path, key, name string) (*Schedule, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	rc, err := r.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, fmt.Errorf("read pdf text: %w", err)
	}

	return ParseScheduleText(buf.String(), key, name)
}

// ParseScheduleText scans text line by line for slab rows. Ranges are read
// as cumulative unit bounds, so "76-200" becomes a slab of 125 units when
// the previous row ended at 75. An open row ("400+") closes the schedule.
func ParseScheduleText(text, key, name string) (*Schedule, error) {
	s := &Schedule{Key: key, Name: name, Currency: CurrencyBDT}
	var upper float64

	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := sc.Text()
		if m := openSlabRe.FindStringSubmatch(line); m != nil {
			rate, err := strconv.ParseFloat(m[3], 64)
			if err != nil {
				return nil, fmt.Errorf("parse rate %q: %w", m[3], err)
			}
			s.Slabs = append(s.Slabs, Slab{Capacity: Unbounded, Rate: rate})
			break
		}
		m := rangeSlabRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		hi, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			return nil, fmt.Errorf("parse bound %q: %w", m[2], err)
		}
		rate, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			return nil, fmt.Errorf("parse rate %q: %w", m[3], err)
		}
		if hi <= upper {
			return nil, fmt.Errorf("%w: slab bound %v does not exceed %v", ErrInvalidSchedule, hi, upper)
		}
		s.Slabs = append(s.Slabs, Slab{Capacity: hi - upper, Rate: rate})
		upper = hi
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan tariff text: %w", err)
	}

	if len(s.Slabs) == 0 {
		return nil, fmt.Errorf("%w: no slab rows found", ErrInvalidSchedule)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
