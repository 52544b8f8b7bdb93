package syncer

import (
	"sort"

	"asset-tracker-go/internal/models"
)

// MergeHistory combines local and remote snapshots. Remote rows are the
// base. Local rows for dates the remote lacks are kept. On a shared date a
// manual local note replaces a remote note that is empty or automatic; in
// every other case the remote row stands. The result is sorted by date.
func MergeHistory(local, remote []models.HistorySnapshot) []models.HistorySnapshot {
	byDate := make(map[string]int, len(remote))
	merged := make([]models.HistorySnapshot, 0, len(remote)+len(local))
	for _, r := range remote {
		r.ID = 0
		if i, ok := byDate[r.Date]; ok {
			merged[i] = r
			continue
		}
		byDate[r.Date] = len(merged)
		merged = append(merged, r)
	}

	for _, l := range local {
		i, ok := byDate[l.Date]
		if !ok {
			l.ID = 0
			byDate[l.Date] = len(merged)
			merged = append(merged, l)
			continue
		}
		if models.IsManualNote(l.Note) && !models.IsManualNote(merged[i].Note) {
			merged[i].Note = l.Note
		}
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Date < merged[j].Date })
	return merged
}
