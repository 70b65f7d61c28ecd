package models

import "time"

// Request represents one submitted form instance moving through its
// approval workflow. Status always names the stage currently awaiting
// action, or a terminal marker.
type Request struct {
	ID             string        `json:"id"`
	Code           string        `json:"code"`
	FormType       string        `json:"form_type"`
	Status         Status        `json:"status"`
	Items          []LineItem    `json:"items"`
	StageRecords   []StageRecord `json:"stage_records"`
	DeclinedReason string        `json:"declined_reason,omitempty"`
	Version        int64         `json:"version"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// LineItem is a single row in a request form. The workflow engine carries
// items but never interprets them.
type LineItem struct {
	ID          int64   `json:"id"`
	RequestID   string  `json:"request_id"`
	Position    int     `json:"position"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit,omitempty"`
	Amount      float64 `json:"amount"`
	Remarks     string  `json:"remarks,omitempty"`
}

// StageRecord is the evidence captured when a stage was executed.
type StageRecord struct {
	Stage        string            `json:"stage"`
	ActorName    string            `json:"actor_name"`
	SignatureRef string            `json:"signature_ref"`
	ExtraFields  map[string]string `json:"extra_fields,omitempty"`
	OccurredAt   time.Time         `json:"occurred_at"`
}

// Status is either a stage name from the form type's workflow definition
// or one of the terminal markers below.
type Status string

const (
	StatusDeclined  Status = "DECLINED"
	StatusCompleted Status = "COMPLETED"
)

// IsTerminal returns true if no further transitions are permitted.
func (s Status) IsTerminal() bool {
	return s == StatusDeclined || s == StatusCompleted
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Record returns the stage record for the named stage, if present.
func (r *Request) Record(stage string) (StageRecord, bool) {
	for _, rec := range r.StageRecords {
		if rec.Stage == stage {
			return rec, true
		}
	}
	return StageRecord{}, false
}
