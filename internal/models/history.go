package models

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DateLayout is the calendar-day key format of history snapshots.
const DateLayout = "2006-01-02"

// HistorySnapshot is one day's recorded total portfolio value.
// There is at most one row per date.
type HistorySnapshot struct {
	ID         uint    `gorm:"primaryKey" json:"id"`
	Date       string  `gorm:"uniqueIndex;not null" json:"date"`
	TotalValue float64 `json:"totalValue"`
	Currency   string  `json:"currency"`
	Note       string  `json:"note,omitempty"`
}

// autoNotePrefixes mark notes written by automation rather than by the user.
var autoNotePrefixes = []string{"[auto]", "(auto)", "自動"}

// IsManualNote reports whether note carries a user annotation: non-empty and
// not produced by an automated snapshot.
func IsManualNote(note string) bool {
	n := strings.ToLower(strings.TrimSpace(note))
	if n == "" {
		return false
	}
	for _, p := range autoNotePrefixes {
		if strings.HasPrefix(n, p) {
			return false
		}
	}
	// "auto", "auto-snapshot", "Auto: ..." but not "automobile".
	if rest, ok := strings.CutPrefix(n, "auto"); ok {
		r, _ := utf8.DecodeRuneInString(rest)
		if rest == "" || !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
