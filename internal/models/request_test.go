package models

import (
	"testing"
	"time"
)

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		expected bool
	}{
		{StatusDeclined, true},
		{StatusCompleted, true},
		{Status("Endorse"), false},
		{Status("Approve"), false},
		{Status(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.expected {
				t.Errorf("Status.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRequest_Record(t *testing.T) {
	req := &Request{
		StageRecords: []StageRecord{
			{Stage: "Endorse", ActorName: "A", OccurredAt: time.Now()},
		},
	}

	record, ok := req.Record("Endorse")
	if !ok {
		t.Fatal("Record() should find executed stage")
	}
	if record.ActorName != "A" {
		t.Errorf("Record().ActorName = %v, want A", record.ActorName)
	}

	if _, ok := req.Record("Approve"); ok {
		t.Error("Record() should not find unexecuted stage")
	}
}
