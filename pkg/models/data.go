package models

import "time"

// PiggybackMessage carries the raw lines one host delivered for another
// host. The receiver stores them so the target's own pipeline can fetch them.
type PiggybackMessage struct {
	// Unique identifier of the collection run that produced the data
	CollectionID string `json:"collection_id"`

	// Host whose agent output contained the data
	SourceHost string `json:"source_host"`

	// Host the data belongs to
	TargetHost string `json:"target_host"`

	// Timestamp when the data was collected
	Timestamp time.Time `json:"timestamp"`

	// Raw agent lines, in order
	Lines []string `json:"lines"`
}
