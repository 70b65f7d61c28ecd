package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dataanalyst1029/rfg-standardized-forms-sub001/internal/models"
	"github.com/dataanalyst1029/rfg-standardized-forms-sub001/internal/workflow"
)

type mockStore struct {
	requests map[string]*models.Request
	nextSeq  int
}

func newMockStore() *mockStore {
	return &mockStore{requests: make(map[string]*models.Request)}
}

func (m *mockStore) Create(_ context.Context, req *models.Request, codePrefix string) error {
	m.nextSeq++
	req.Code = fmt.Sprintf("%s-%d-%06d", codePrefix, req.CreatedAt.Year(), m.nextSeq)
	req.Version = 1
	m.requests[req.Code] = req
	return nil
}

func (m *mockStore) GetByCode(_ context.Context, code string) (*models.Request, error) {
	req, ok := m.requests[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", workflow.ErrNotFound, code)
	}
	return req, nil
}

func (m *mockStore) ListByStatus(_ context.Context, formType string, statuses []string) ([]*models.Request, error) {
	wanted := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}
	var out []*models.Request
	for _, req := range m.requests {
		if req.FormType == formType && wanted[req.Status.String()] {
			out = append(out, req)
		}
	}
	return out, nil
}

func testRegistry(t *testing.T) *workflow.Registry {
	t.Helper()
	registry, err := workflow.NewRegistry([]workflow.Definition{
		{
			FormType:   "purchase_request",
			CodePrefix: "PR",
			Stages: []workflow.StageSpec{
				{Name: "Endorse", Role: "endorser", Evidence: workflow.EvidenceSpec{ActorName: true, Signature: true}},
				{Name: "Approve", Role: "approver", Evidence: workflow.EvidenceSpec{ActorName: true, Signature: true}},
			},
		},
		{
			FormType:   "transmittal",
			CodePrefix: "TR",
			Stages: []workflow.StageSpec{
				{Name: "Dispatch", Role: "dispatcher", Evidence: workflow.EvidenceSpec{ActorName: true, Signature: true}},
				{Name: "Receive", Role: "receiver", Evidence: workflow.EvidenceSpec{ActorName: true, Signature: true}},
			},
		},
	})
	require.NoError(t, err)
	return registry
}

func TestRequestService_CreateRequest(t *testing.T) {
	store := newMockStore()
	svc := NewRequestService(testRegistry(t), store, zap.NewNop())

	items := []models.LineItem{
		{Description: "Bond paper", Quantity: 10, Unit: "ream", Amount: 2500},
		{Description: "Toner", Quantity: 2, Unit: "pc", Amount: 7800},
	}
	req, err := svc.CreateRequest(context.Background(), "purchase_request", items)
	require.NoError(t, err)

	assert.NotEmpty(t, req.ID)
	assert.Equal(t, fmt.Sprintf("PR-%d-000001", time.Now().UTC().Year()), req.Code)
	assert.Equal(t, models.Status("Endorse"), req.Status)
	assert.Len(t, req.Items, 2)
	assert.Empty(t, req.StageRecords)

	// Unknown form types are configuration errors.
	_, err = svc.CreateRequest(context.Background(), "expense_report", nil)
	assert.ErrorIs(t, err, workflow.ErrConfiguration)
}

func TestRequestService_PendingFor(t *testing.T) {
	store := newMockStore()
	svc := NewRequestService(testRegistry(t), store, zap.NewNop())
	ctx := context.Background()

	pr1, err := svc.CreateRequest(ctx, "purchase_request", nil)
	require.NoError(t, err)
	pr2, err := svc.CreateRequest(ctx, "purchase_request", nil)
	require.NoError(t, err)
	tr, err := svc.CreateRequest(ctx, "transmittal", nil)
	require.NoError(t, err)

	// Advance one purchase request past Endorse.
	pr2.Status = "Approve"

	pending, err := svc.PendingFor(ctx, "endorser", "")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, pr1.Code, pending[0].Code)

	pending, err = svc.PendingFor(ctx, "approver", "")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, pr2.Code, pending[0].Code)

	pending, err = svc.PendingFor(ctx, "dispatcher", "")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, tr.Code, pending[0].Code)

	// Narrowing to a form type the role has no stages in yields nothing.
	pending, err = svc.PendingFor(ctx, "dispatcher", "purchase_request")
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Terminal requests never surface.
	pr1.Status = models.StatusDeclined
	pending, err = svc.PendingFor(ctx, "endorser", "")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRequestService_History(t *testing.T) {
	store := newMockStore()
	svc := NewRequestService(testRegistry(t), store, zap.NewNop())
	ctx := context.Background()

	req, err := svc.CreateRequest(ctx, "purchase_request", nil)
	require.NoError(t, err)

	history, err := svc.History(ctx, req.Code)
	require.NoError(t, err)
	assert.Empty(t, history)

	t1 := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	req.Status = "Approve"
	req.StageRecords = []models.StageRecord{
		{Stage: "Endorse", ActorName: "A", SignatureRef: "s1", OccurredAt: t1},
	}

	history, err = svc.History(ctx, req.Code)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Endorse", history[0].Stage)
	assert.Equal(t, "A", history[0].ActorName)
	assert.Equal(t, t1, *history[0].OccurredAt)
	assert.False(t, history[0].Declined)

	// Decline at Approve: the trail keeps the executed stage and marks the
	// refused one with the reason.
	req.Status = models.StatusDeclined
	req.DeclinedReason = "supplier not accredited"

	history, err = svc.History(ctx, req.Code)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Approve", history[1].Stage)
	assert.True(t, history[1].Declined)
	assert.Equal(t, "supplier not accredited", history[1].Reason)
	assert.Nil(t, history[1].OccurredAt)

	_, err = svc.History(ctx, "PR-2026-999999")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestRequestService_Register(t *testing.T) {
	store := newMockStore()
	svc := NewRequestService(testRegistry(t), store, zap.NewNop())
	ctx := context.Background()

	active, err := svc.CreateRequest(ctx, "purchase_request", nil)
	require.NoError(t, err)
	done, err := svc.CreateRequest(ctx, "purchase_request", nil)
	require.NoError(t, err)
	done.Status = models.StatusCompleted

	requests, err := svc.Register(ctx, "purchase_request")
	require.NoError(t, err)
	require.Len(t, requests, 2)
	codes := []string{requests[0].Code, requests[1].Code}
	assert.ElementsMatch(t, []string{active.Code, done.Code}, codes)

	_, err = svc.Register(ctx, "unknown")
	assert.ErrorIs(t, err, workflow.ErrConfiguration)
}
