package workflow

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dataanalyst1029/rfg-standardized-forms-sub001/internal/models"
)

// Store is the persistence dependency of the engine. Save must atomically
// persist the status advance together with the stage record (nil for
// declines) and fail with ErrConflict when the stored version no longer
// matches req.Version.
type Store interface {
	GetByCode(ctx context.Context, code string) (*models.Request, error)
	Save(ctx context.Context, req *models.Request, record *models.StageRecord) error
}

// Evidence is the data submitted to complete a stage.
type Evidence struct {
	ActorName    string
	SignatureRef string
	ExtraFields  map[string]string
}

// Engine is the sole path for moving a request through its workflow. It
// serializes transitions per request code in-process; the store's version
// check guards races that bypass this process.
type Engine struct {
	registry *Registry
	store    Store
	logger   *zap.Logger

	locks sync.Map // code -> *sync.Mutex
}

// NewEngine creates a new workflow engine.
func NewEngine(registry *Registry, store Store, logger *zap.Logger) *Engine {
	return &Engine{
		registry: registry,
		store:    store,
		logger:   logger,
	}
}

func (e *Engine) lock(code string) func() {
	mu, _ := e.locks.LoadOrStore(code, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// Execute completes the stage a request is currently awaiting. The acting
// role must match the stage's authorized role and the evidence must satisfy
// the stage's requirements; on success the stage record is written and
// status advances to the next stage, or Completed after the last.
func (e *Engine) Execute(ctx context.Context, code, actingRole string, evidence Evidence) (*models.Request, error) {
	unlock := e.lock(code)
	defer unlock()

	req, spec, err := e.loadActionable(ctx, code, actingRole)
	if err != nil {
		return nil, err
	}

	if missing := missingEvidence(spec.Evidence, evidence); len(missing) > 0 {
		return nil, &EvidenceError{Fields: missing}
	}

	next, err := e.registry.NextStatus(req.FormType, spec.Name)
	if err != nil {
		return nil, err
	}

	record := models.StageRecord{
		Stage:        spec.Name,
		ActorName:    evidence.ActorName,
		SignatureRef: evidence.SignatureRef,
		ExtraFields:  evidence.ExtraFields,
		OccurredAt:   time.Now().UTC(),
	}

	req.Status = next
	req.StageRecords = append(req.StageRecords, record)

	if err := e.store.Save(ctx, req, &record); err != nil {
		return nil, err
	}

	e.logger.Info("Stage executed",
		zap.String("code", code),
		zap.String("form_type", req.FormType),
		zap.String("stage", spec.Name),
		zap.String("role", actingRole),
		zap.String("next_status", next.String()))

	return req, nil
}

// Decline refuses the stage a request is currently awaiting and moves the
// request to the terminal Declined state. The stage is not recorded as
// executed; only the reason is kept.
func (e *Engine) Decline(ctx context.Context, code, actingRole, reason string) (*models.Request, error) {
	unlock := e.lock(code)
	defer unlock()

	req, spec, err := e.loadActionable(ctx, code, actingRole)
	if err != nil {
		return nil, err
	}

	if reason == "" {
		return nil, &EvidenceError{Fields: []string{"reason"}}
	}

	req.Status = models.StatusDeclined
	req.DeclinedReason = reason

	if err := e.store.Save(ctx, req, nil); err != nil {
		return nil, err
	}

	e.logger.Info("Request declined",
		zap.String("code", code),
		zap.String("form_type", req.FormType),
		zap.String("stage", spec.Name),
		zap.String("role", actingRole))

	return req, nil
}

// loadActionable loads a request and checks the preconditions shared by
// Execute and Decline: the request exists, is not terminal, its status
// resolves to a defined stage, and the acting role owns that stage.
func (e *Engine) loadActionable(ctx context.Context, code, actingRole string) (*models.Request, StageSpec, error) {
	req, err := e.store.GetByCode(ctx, code)
	if err != nil {
		return nil, StageSpec{}, err
	}

	if req.Status.IsTerminal() {
		return nil, StageSpec{}, ErrAlreadyTerminal
	}

	spec, err := e.registry.StageFor(req.FormType, req.Status)
	if err != nil {
		return nil, StageSpec{}, err
	}

	if actingRole != spec.Role {
		return nil, StageSpec{}, ErrUnauthorized
	}

	return req, spec, nil
}

func missingEvidence(spec EvidenceSpec, evidence Evidence) []string {
	var missing []string
	if spec.ActorName && evidence.ActorName == "" {
		missing = append(missing, "actor_name")
	}
	if spec.Signature && evidence.SignatureRef == "" {
		missing = append(missing, "signature_ref")
	}
	for _, field := range spec.ExtraFields {
		if evidence.ExtraFields[field] == "" {
			missing = append(missing, field)
		}
	}
	return missing
}
