// Package parser implements the line grammar that turns raw chat text into
// typed ledger entries. Messages interleave data lines with incidental chat
// text, so the grammar is permissive: anything that is not a section header
// or a well-formed data line is skipped and reported back to the caller.
// The package itself does no I/O; callers decide how to surface skips.
package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"cashgame-ledger-bot/internal/model"
)

// Section headers that switch the active direction for subsequent lines.
// Compared case-insensitively against the whole trimmed line.
const (
	HeaderIn  = "вход:"
	HeaderOut = "выход:"
)

// Entry is one parsed ledger line.
type Entry struct {
	Username  string
	Amount    int64
	Direction model.Direction
}

// state tracks which section header was seen last.
type state int

const (
	stateNone state = iota // no header seen yet, data lines are ignored
	stateIn
	stateOut
)

// entryPattern matches a data line: leading '+', the amount, optional
// whitespace, a '|' separator, then the name field to end of line.
// Comment suffixes ("// ...") are stripped from the name afterwards.
var entryPattern = regexp.MustCompile(`^\+(\d+)\s*\|\s*(.+)$`)

// datePattern matches the "game DD.MM.YYYY" date directive.
var datePattern = regexp.MustCompile(`game\s+(\d{2}\.\d{2}\.\d{4})`)

// Parse walks the trimmed, non-empty lines in order and returns the entries
// produced. A header line switches direction and emits nothing; headers may
// repeat and the last one wins. Data lines seen before any header are
// ignored, as are lines that do not match the grammar; every such line is
// returned in skipped so callers can log them.
func Parse(lines []string) (entries []Entry, skipped []string) {
	current := stateNone

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		switch strings.ToLower(trimmed) {
		case HeaderIn:
			current = stateIn
			continue
		case HeaderOut:
			current = stateOut
			continue
		}

		if current == stateNone {
			skipped = append(skipped, trimmed)
			continue
		}

		m := entryPattern.FindStringSubmatch(trimmed)
		if m == nil {
			skipped = append(skipped, trimmed)
			continue
		}

		amount, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || amount <= 0 {
			skipped = append(skipped, trimmed)
			continue
		}

		username := m[2]
		if i := strings.Index(username, "//"); i >= 0 {
			username = username[:i]
		}
		username = strings.TrimSpace(username)
		if username == "" {
			skipped = append(skipped, trimmed)
			continue
		}

		direction := model.DirectionIn
		if current == stateOut {
			direction = model.DirectionOut
		}

		entries = append(entries, Entry{
			Username:  username,
			Amount:    amount,
			Direction: direction,
		})
	}

	return entries, skipped
}

// ExtractDate looks for a "game DD.MM.YYYY" directive in the text and
// returns the date it names. The second return value is false when no
// well-formed directive is present.
func ExtractDate(text string) (time.Time, bool) {
	m := datePattern.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}

	date, err := time.Parse("02.01.2006", m[1])
	if err != nil {
		return time.Time{}, false
	}

	return date, true
}

// CommandLineIndex returns the index of the line carrying the "game"
// command keyword, or -1 if none is present. Data lines follow the command
// line, so callers slice past it before parsing.
func CommandLineIndex(lines []string) int {
	for i, line := range lines {
		if strings.Contains(line, "game") {
			return i
		}
	}
	return -1
}

// DataLines returns the lines after the command line, or all lines when no
// command line is present.
func DataLines(lines []string) []string {
	if i := CommandLineIndex(lines); i >= 0 {
		return lines[i+1:]
	}
	return lines
}

// SplitLines splits raw message text into trimmed, non-empty lines, the
// input form the parser expects.
func SplitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}
