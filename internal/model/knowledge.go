package model

import "time"

// KnowledgeItem is a PDF document ingested into a workspace's knowledge
// base: extracted text plus an AI-generated summary. It has no
// relational link to snapshots or experiments.
type KnowledgeItem struct {
	ID               int64     `json:"id"`
	WorkspaceID      int64     `json:"workspace_id"`
	FileName         string    `json:"file_name"`
	ExtractedContent string    `json:"extracted_content"`
	Summary          string    `json:"summary"`
	UploadedAt       time.Time `json:"uploaded_at"`
}
