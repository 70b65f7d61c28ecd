package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dataanalyst1029/rfg-standardized-forms-sub001/internal/export"
	"github.com/dataanalyst1029/rfg-standardized-forms-sub001/internal/models"
	"github.com/dataanalyst1029/rfg-standardized-forms-sub001/internal/service"
	"github.com/dataanalyst1029/rfg-standardized-forms-sub001/internal/workflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine   *workflow.Engine
	requests *service.RequestService
	exporter *export.RegisterExporter
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	engine *workflow.Engine,
	requests *service.RequestService,
	exporter *export.RegisterExporter,
	logger Logger,
) *Handlers {
	return &Handlers{
		engine:   engine,
		requests: requests,
		exporter: exporter,
		logger:   logger,
	}
}

// Response is the standard JSON envelope
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody is the structured error shape surfaced to clients
type ErrorBody struct {
	Kind    string   `json:"kind"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

// CreateRequestBody is the payload for submitting a new request
type CreateRequestBody struct {
	Items []LineItemBody `json:"items" binding:"required,min=1,dive"`
}

// LineItemBody is one form line in a submission
type LineItemBody struct {
	Description string  `json:"description" binding:"required"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit"`
	Amount      float64 `json:"amount"`
	Remarks     string  `json:"remarks"`
}

// TransitionBody is the payload for executing the awaited stage
type TransitionBody struct {
	ActingRole string       `json:"acting_role" binding:"required"`
	Evidence   EvidenceBody `json:"evidence"`
}

// EvidenceBody carries the stage evidence
type EvidenceBody struct {
	ActorName    string            `json:"actor_name"`
	SignatureRef string            `json:"signature_ref"`
	ExtraFields  map[string]string `json:"extra_fields"`
}

// DeclineBody is the payload for declining a request
type DeclineBody struct {
	ActingRole string `json:"acting_role" binding:"required"`
	Reason     string `json:"reason"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// CreateRequest handles POST /api/requests/:formType
func (h *Handlers) CreateRequest(c *gin.Context) {
	formType := c.Param("formType")

	var body CreateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err)
		return
	}

	items := make([]models.LineItem, 0, len(body.Items))
	for _, item := range body.Items {
		items = append(items, models.LineItem{
			Description: item.Description,
			Quantity:    item.Quantity,
			Unit:        item.Unit,
			Amount:      item.Amount,
			Remarks:     item.Remarks,
		})
	}

	req, err := h.requests.CreateRequest(c.Request.Context(), formType, items)
	if err != nil {
		h.engineError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data: gin.H{
			"code":   req.Code,
			"status": req.Status,
		},
	})
}

// ListPending handles GET /api/requests?role=&form_type=
func (h *Handlers) ListPending(c *gin.Context) {
	role := c.Query("role")
	if role == "" {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   &ErrorBody{Kind: "bad_request", Message: "role query parameter is required"},
		})
		return
	}

	requests, err := h.requests.PendingFor(c.Request.Context(), role, c.Query("form_type"))
	if err != nil {
		h.engineError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: requests})
}

// GetRequest handles GET /api/requests/:code
func (h *Handlers) GetRequest(c *gin.Context) {
	req, err := h.requests.GetRequest(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.engineError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: req})
}

// Transition handles PUT /api/requests/:code/transition
func (h *Handlers) Transition(c *gin.Context) {
	var body TransitionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err)
		return
	}

	req, err := h.engine.Execute(c.Request.Context(), c.Param("code"), body.ActingRole, workflow.Evidence{
		ActorName:    body.Evidence.ActorName,
		SignatureRef: body.Evidence.SignatureRef,
		ExtraFields:  body.Evidence.ExtraFields,
	})
	if err != nil {
		h.engineError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: req})
}

// Decline handles PUT /api/requests/:code/decline
func (h *Handlers) Decline(c *gin.Context) {
	var body DeclineBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err)
		return
	}

	req, err := h.engine.Decline(c.Request.Context(), c.Param("code"), body.ActingRole, body.Reason)
	if err != nil {
		h.engineError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: req})
}

// History handles GET /api/requests/:code/history
func (h *Handlers) History(c *gin.Context) {
	history, err := h.requests.History(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.engineError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: history})
}

const excelContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportRequest handles GET /api/requests/:code/export
func (h *Handlers) ExportRequest(c *gin.Context) {
	code := c.Param("code")
	req, err := h.requests.GetRequest(c.Request.Context(), code)
	if err != nil {
		h.engineError(c, err)
		return
	}

	f, err := h.exporter.ApprovalSheet(req)
	if err != nil {
		h.engineError(c, err)
		return
	}
	defer f.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.xlsx", code))
	c.Header("Content-Type", excelContentType)
	if err := f.Write(c.Writer); err != nil {
		h.logger.Error("Failed to stream approval sheet", "code", code, "error", err)
	}
}

// ExportRegister handles GET /api/reports/:formType/register
func (h *Handlers) ExportRegister(c *gin.Context) {
	formType := c.Param("formType")
	requests, err := h.requests.Register(c.Request.Context(), formType)
	if err != nil {
		h.engineError(c, err)
		return
	}

	f, err := h.exporter.Register(formType, requests)
	if err != nil {
		h.engineError(c, err)
		return
	}
	defer f.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_register.xlsx", formType))
	c.Header("Content-Type", excelContentType)
	if err := f.Write(c.Writer); err != nil {
		h.logger.Error("Failed to stream register", "form_type", formType, "error", err)
	}
}

func (h *Handlers) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   &ErrorBody{Kind: "bad_request", Message: err.Error()},
	})
}

// engineError maps the workflow error taxonomy onto HTTP statuses.
func (h *Handlers) engineError(c *gin.Context, err error) {
	body := &ErrorBody{Message: err.Error()}
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, workflow.ErrNotFound):
		status, body.Kind = http.StatusNotFound, "not_found"
	case errors.Is(err, workflow.ErrAlreadyTerminal):
		status, body.Kind = http.StatusConflict, "already_terminal"
	case errors.Is(err, workflow.ErrUnauthorized):
		status, body.Kind = http.StatusForbidden, "unauthorized"
	case errors.Is(err, workflow.ErrIncompleteEvidence):
		status, body.Kind = http.StatusUnprocessableEntity, "incomplete_evidence"
		body.Fields = workflow.MissingFields(err)
	case errors.Is(err, workflow.ErrConflict):
		status, body.Kind = http.StatusConflict, "conflict"
	case errors.Is(err, workflow.ErrConfiguration):
		status, body.Kind = http.StatusInternalServerError, "configuration_error"
	default:
		body.Kind = "internal_error"
		h.logger.Error("Unhandled engine error", "error", err)
	}

	c.JSON(status, Response{Success: false, Error: body})
}
