// Package view derives display projections from snapshot pages. The
// projection is pure: it never mutates the snapshot and recomputes from
// scratch on each call, so stale tags cannot survive a snapshot switch.
package view

import (
	"sort"
	"strings"

	"searchlens.app/analyzer/internal/model"
)

// Sort keys accepted by Options.SortKey. Unknown keys fall back to
// impressions.
const (
	SortByPage        = "Page"
	SortByClicks      = "Clicks"
	SortByImpressions = "Impressions"
	SortByCTR         = "CTR"
)

// Options shapes one projection pass.
type Options struct {
	// Filter keeps rows whose page URL contains the substring,
	// case-insensitive. Empty keeps everything.
	Filter string
	// OpportunityOnly keeps only rows tagged as top opportunities.
	OpportunityOnly bool
	SortKey         string
	Ascending       bool
}

// Row is one projected page with its display-derived fields.
type Row struct {
	model.PageRecord
	CTR              string `json:"ctr"`
	IsTopOpportunity bool   `json:"isTopOpportunity"`
}

// Toggle returns the sort state after clicking a column header: the
// same key flips direction, a new key starts descending.
func Toggle(currentKey string, currentAscending bool, clicked string) (string, bool) {
	if clicked == currentKey {
		return currentKey, !currentAscending
	}
	return clicked, false
}

// Project derives the display rows for a snapshot's pages. opportunities
// is the set of page URLs the performance summary flagged; matching rows
// are tagged so the filter and the badge stay consistent.
func Project(pages []model.PageRecord, opportunities []string, opts Options) []Row {
	oppSet := make(map[string]struct{}, len(opportunities))
	for _, url := range opportunities {
		oppSet[url] = struct{}{}
	}

	filter := strings.ToLower(opts.Filter)

	rows := make([]Row, 0, len(pages))
	for _, rec := range pages {
		if filter != "" && !strings.Contains(strings.ToLower(rec.Page), filter) {
			continue
		}
		_, isOpp := oppSet[rec.Page]
		if opts.OpportunityOnly && !isOpp {
			continue
		}
		rows = append(rows, Row{
			PageRecord:       rec,
			CTR:              model.ComputeCTR(rec.Clicks, rec.Impressions),
			IsTopOpportunity: isOpp,
		})
	}

	sortRows(rows, opts)
	return rows
}

func sortRows(rows []Row, opts Options) {
	key := opts.SortKey
	if key == "" {
		key = SortByImpressions
	}

	var less func(a, b Row) bool
	switch key {
	case SortByPage:
		less = func(a, b Row) bool { return a.Page < b.Page }
	case SortByClicks:
		less = func(a, b Row) bool { return a.Clicks < b.Clicks }
	case SortByCTR:
		less = func(a, b Row) bool { return ctrValue(a) < ctrValue(b) }
	default:
		less = func(a, b Row) bool { return a.Impressions < b.Impressions }
	}

	// Stable so equal-key rows keep their snapshot order.
	sort.SliceStable(rows, func(i, j int) bool {
		if opts.Ascending {
			return less(rows[i], rows[j])
		}
		return less(rows[j], rows[i])
	})
}

func ctrValue(r Row) float64 {
	if r.Impressions == 0 {
		return 0
	}
	return float64(r.Clicks) / float64(r.Impressions)
}
