package model

import "time"

// PageRecord is one row of an ingested Search Console export. The JSON
// field names match the stored document shape: the uppercase trio comes
// straight from the CSV header, the lowercase fields are enrichment.
type PageRecord struct {
	Page                 string  `json:"Page"`
	Clicks               int     `json:"Clicks"`
	Impressions          int     `json:"Impressions"`
	Title                *string `json:"title"`
	Description          *string `json:"description"`
	SuggestedTitle       *string `json:"suggestedTitle,omitempty"`
	SuggestedDescription *string `json:"suggestedDescription,omitempty"`
	SuggestedReasoning   *string `json:"suggestedReasoning,omitempty"`
}

// DateRange is the measurement period a snapshot covers.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Snapshot is one capture of an uploaded performance-data file plus its
// derived AI summary. Pages keep the source file's row order; row-level
// updates match on the Page URL key, never on position.
type Snapshot struct {
	ID                 int64        `json:"id"`
	WorkspaceID        int64        `json:"workspace_id"`
	FileName           string       `json:"file_name"`
	Pages              []PageRecord `json:"pages"`
	PerformanceSummary *string      `json:"performance_summary,omitempty"` // opaque JSON text
	DateRange          *DateRange   `json:"date_range,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// PagePatch is a keyed partial update for one page row. Nil fields are
// left untouched by the merge.
type PagePatch struct {
	Title                *string
	Description          *string
	SuggestedTitle       *string
	SuggestedDescription *string
	SuggestedReasoning   *string
}

// Apply merges the patch into the record.
func (p PagePatch) Apply(rec *PageRecord) {
	if p.Title != nil {
		rec.Title = p.Title
	}
	if p.Description != nil {
		rec.Description = p.Description
	}
	if p.SuggestedTitle != nil {
		rec.SuggestedTitle = p.SuggestedTitle
	}
	if p.SuggestedDescription != nil {
		rec.SuggestedDescription = p.SuggestedDescription
	}
	if p.SuggestedReasoning != nil {
		rec.SuggestedReasoning = p.SuggestedReasoning
	}
}

// FindPage returns the first page record whose Page equals url, or nil.
func (s *Snapshot) FindPage(url string) *PageRecord {
	for i := range s.Pages {
		if s.Pages[i].Page == url {
			return &s.Pages[i]
		}
	}
	return nil
}
