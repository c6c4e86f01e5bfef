package logscan

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DefaultMaxLines bounds how far back in the log a scan looks. The scan is a
// heuristic over recent output, not an exhaustive audit.
const DefaultMaxLines = 200

// DefaultFreshness is how far back in time a matched line still counts as
// evidence of a current failure.
const DefaultFreshness = 2 * time.Minute

// Signature is a named failure pattern with a freshness window.
type Signature struct {
	Name      string
	Pattern   string
	Freshness time.Duration

	re *regexp.Regexp
}

// NewSignature compiles pattern and applies the default freshness window when
// none is given. Signatures are static configuration, built once at startup.
func NewSignature(name, pattern string, freshness time.Duration) (Signature, error) {
	if strings.TrimSpace(name) == "" {
		return Signature{}, fmt.Errorf("signature requires a name")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Signature{}, fmt.Errorf("signature %s: %w", name, err)
	}
	if freshness <= 0 {
		freshness = DefaultFreshness
	}
	return Signature{Name: name, Pattern: pattern, Freshness: freshness, re: re}, nil
}

// Scanner scans a bounded tail of a worker's log for failure signatures.
type Scanner struct {
	MaxLines int
}

// Scan reads the last MaxLines lines of the log and returns the first
// signature (in configured priority order) with a sufficiently fresh match,
// or nil when none matches. Lines whose timestamp cannot be parsed are
// treated as current, failing toward detection. A log that does not exist
// yet is not a failure: the target may have just started.
func (s Scanner) Scan(path string, sigs []Signature, now time.Time) (*Signature, error) {
	maxLines := s.MaxLines
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	lines, err := TailLines(path, maxLines)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, nil
	}
	for i := range sigs {
		sig := &sigs[i]
		for _, line := range lines {
			if !sig.re.MatchString(line) {
				continue
			}
			ts, ok := parseLineTime(line, now)
			if !ok {
				ts = now // unparseable timestamp counts as recent
			}
			if now.Sub(ts) <= sig.Freshness {
				return sig, nil
			}
		}
	}
	return nil, nil
}

// timeFormats are tried in order against the extracted timestamp candidate.
var timeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02T15:04:05",
}

// syslog-style timestamps carry no year
const syslogFormat = "Jan _2 15:04:05"

// parseLineTime extracts a leading timestamp from a log line. Handles bare
// timestamps, bracketed ones, and slog text output ("time=...").
func parseLineTime(line string, now time.Time) (time.Time, bool) {
	candidate := strings.TrimSpace(line)
	if v, ok := strings.CutPrefix(candidate, "time="); ok {
		candidate = v
	} else if strings.HasPrefix(candidate, "[") {
		if end := strings.IndexByte(candidate, ']'); end > 0 {
			candidate = candidate[1:end]
		}
	}
	// at most "date time" from the first two whitespace-separated fields
	fields := strings.Fields(candidate)
	if len(fields) == 0 {
		return time.Time{}, false
	}
	single := fields[0]
	double := single
	triple := single
	if len(fields) >= 2 {
		double = fields[0] + " " + fields[1]
	}
	if len(fields) >= 3 {
		triple = fields[0] + " " + fields[1] + " " + fields[2]
	}

	for _, f := range timeFormats {
		for _, c := range []string{double, single} {
			if ts, err := time.ParseInLocation(f, c, now.Location()); err == nil {
				return ts, true
			}
		}
	}
	if ts, err := time.ParseInLocation(syslogFormat, triple, now.Location()); err == nil {
		// borrow the current year; handle year-end wrap by preferring the past
		ts = ts.AddDate(now.Year(), 0, 0)
		if ts.After(now.Add(24 * time.Hour)) {
			ts = ts.AddDate(-1, 0, 0)
		}
		return ts, true
	}
	return time.Time{}, false
}
