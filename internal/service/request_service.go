package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dataanalyst1029/rfg-standardized-forms-sub001/internal/models"
	"github.com/dataanalyst1029/rfg-standardized-forms-sub001/internal/workflow"
)

// RequestStore is the persistence surface the service reads through. The
// engine owns all mutation beyond Create.
type RequestStore interface {
	Create(ctx context.Context, req *models.Request, codePrefix string) error
	GetByCode(ctx context.Context, code string) (*models.Request, error)
	ListByStatus(ctx context.Context, formType string, statuses []string) ([]*models.Request, error)
}

// HistoryEntry is one line of a request's audit trail, ordered by the form
// type's stage sequence.
type HistoryEntry struct {
	Stage        string            `json:"stage"`
	ActorName    string            `json:"actor_name,omitempty"`
	SignatureRef string            `json:"signature_ref,omitempty"`
	ExtraFields  map[string]string `json:"extra_fields,omitempty"`
	OccurredAt   *time.Time        `json:"occurred_at,omitempty"`
	Declined     bool              `json:"declined,omitempty"`
	Reason       string            `json:"reason,omitempty"`
}

// RequestService covers the read side of the portal plus request creation.
type RequestService struct {
	registry *workflow.Registry
	store    RequestStore
	logger   *zap.Logger
}

// NewRequestService creates a new request service.
func NewRequestService(registry *workflow.Registry, store RequestStore, logger *zap.Logger) *RequestService {
	return &RequestService{
		registry: registry,
		store:    store,
		logger:   logger,
	}
}

// CreateRequest submits a new request at its form type's first stage.
func (s *RequestService) CreateRequest(ctx context.Context, formType string, items []models.LineItem) (*models.Request, error) {
	def, err := s.registry.Definition(formType)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	req := &models.Request{
		ID:        uuid.NewString(),
		FormType:  formType,
		Status:    models.Status(def.Stages[0].Name),
		Items:     items,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.Create(ctx, req, def.CodePrefix); err != nil {
		return nil, err
	}

	s.logger.Info("Request created",
		zap.String("code", req.Code),
		zap.String("form_type", formType),
		zap.String("status", req.Status.String()),
		zap.Int("items", len(items)))

	return req, nil
}

// GetRequest loads one request by its reference code.
func (s *RequestService) GetRequest(ctx context.Context, code string) (*models.Request, error) {
	return s.store.GetByCode(ctx, code)
}

// PendingFor returns the non-terminal requests currently awaiting a stage
// granted to the given role, optionally narrowed to one form type.
func (s *RequestService) PendingFor(ctx context.Context, role, formType string) ([]*models.Request, error) {
	roleStages := s.registry.RoleStages(role)

	var pending []*models.Request
	for ft, stages := range roleStages {
		if formType != "" && ft != formType {
			continue
		}
		requests, err := s.store.ListByStatus(ctx, ft, stages)
		if err != nil {
			return nil, err
		}
		pending = append(pending, requests...)
	}
	return pending, nil
}

// History reconstructs the audit trail of a request from its stage records,
// ordered by the workflow definition's stage sequence. When the request was
// declined, the entry for the stage that refused it carries the reason.
func (s *RequestService) History(ctx context.Context, code string) ([]HistoryEntry, error) {
	req, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	def, err := s.registry.Definition(req.FormType)
	if err != nil {
		return nil, err
	}

	var history []HistoryEntry
	for _, stage := range def.Stages {
		record, ok := req.Record(stage.Name)
		if ok {
			occurredAt := record.OccurredAt
			history = append(history, HistoryEntry{
				Stage:        stage.Name,
				ActorName:    record.ActorName,
				SignatureRef: record.SignatureRef,
				ExtraFields:  record.ExtraFields,
				OccurredAt:   &occurredAt,
			})
			continue
		}

		// The first unexecuted stage is where a declined request stopped.
		if req.Status == models.StatusDeclined {
			history = append(history, HistoryEntry{
				Stage:    stage.Name,
				Declined: true,
				Reason:   req.DeclinedReason,
			})
		}
		break
	}
	return history, nil
}

// Register returns every request of one form type, newest last, for the
// export report. An unknown form type is a configuration error.
func (s *RequestService) Register(ctx context.Context, formType string) ([]*models.Request, error) {
	def, err := s.registry.Definition(formType)
	if err != nil {
		return nil, err
	}

	statuses := make([]string, 0, len(def.Stages)+2)
	for _, stage := range def.Stages {
		statuses = append(statuses, stage.Name)
	}
	statuses = append(statuses, models.StatusDeclined.String(), models.StatusCompleted.String())

	requests, err := s.store.ListByStatus(ctx, formType, statuses)
	if err != nil {
		return nil, fmt.Errorf("failed to load register for %s: %w", formType, err)
	}
	return requests, nil
}
