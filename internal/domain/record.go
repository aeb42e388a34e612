package domain

import (
	"strings"
	"time"
)

// ListItem is one element of a generated list.
type ListItem struct {
	Brand  string `json:"brand" validate:"required"`
	Site   string `json:"site"`
	Locale string `json:"locale"`
	Reason string `json:"reason,omitempty"`
}

// ProbeRecord is one generated list together with the context it was
// produced for. Records are append-only; Seq is assigned by the store and
// increases monotonically within a store.
type ProbeRecord struct {
	Seq            int64      `json:"seq,omitempty"`
	RunID          string     `json:"run_id,omitempty"`
	EntityID       string     `json:"entity_id,omitempty"`
	Entity         string     `json:"entity"`
	Locale         string     `json:"locale"`
	Language       string     `json:"language,omitempty"`
	Category       string     `json:"category,omitempty"`
	Disambiguation string     `json:"disambiguation,omitempty"`
	List           []ListItem `json:"list"`
	Timestamp      time.Time  `json:"timestamp"`
}

// Ranking extracts the ranked brand identifiers from the record's list,
// trimming whitespace and skipping blank entries. Order is preserved.
func (r ProbeRecord) Ranking() RankedList {
	out := make(RankedList, 0, len(r.List))
	for _, item := range r.List {
		if b := strings.TrimSpace(item.Brand); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Rankings extracts the ranking of every record, dropping empty ones.
func Rankings(records []ProbeRecord) []RankedList {
	out := make([]RankedList, 0, len(records))
	for _, r := range records {
		if l := r.Ranking(); len(l) > 0 {
			out = append(out, l)
		}
	}
	return out
}

// Popularity bins drive the per-context list target during collection.
const (
	PopularityHead  = "head"
	PopularityTorso = "torso"
	PopularityTail  = "tail"
)

// Entity is a subject to be probed in one or more locales.
type Entity struct {
	ID             string   `json:"id"`
	Name           string   `json:"entity"`
	Disambiguation string   `json:"disambiguation,omitempty"`
	Category       string   `json:"category,omitempty"`
	Locales        []string `json:"locales"`
	Language       string   `json:"language,omitempty"`
	PopularityBin  string   `json:"popularity_bin,omitempty"`
}

// ProgressEntry records the outcome of collecting one (entity, locale) context.
type ProgressEntry struct {
	EntityID     string
	Entity       string
	Locale       string
	Done         int
	StoppedEarly bool
	Reason       string
	Timestamp    time.Time
}
