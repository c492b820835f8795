package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/assoconnect/approval-flow/internal/application/engine"
	"github.com/assoconnect/approval-flow/internal/domain/workflow"
	"github.com/assoconnect/approval-flow/internal/export"
)

// Handler exposes the workflow engine to the commission, administrative and
// bureau frontends. Actor identity always travels in the request body; the
// engine never reads ambient session state.
type Handler struct {
	engine   engine.Engine
	exporter *export.Exporter
	logger   *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(eng engine.Engine, exporter *export.Exporter, logger *zap.Logger) *Handler {
	return &Handler{
		engine:   eng,
		exporter: exporter,
		logger:   logger,
	}
}

type createDocumentRequest struct {
	DocumentType   string `json:"document_type" binding:"required"`
	OriginatorID   string `json:"originator_id" binding:"required"`
	OriginatorRole string `json:"originator_role" binding:"required"`
	Title          string `json:"title"`
	Payload        string `json:"payload"`
}

type transitionRequest struct {
	ActorID     string `json:"actor_id" binding:"required"`
	ActorRole   string `json:"actor_role" binding:"required"`
	TargetStage string `json:"target_stage" binding:"required"`
	Note        string `json:"note"`
}

type amountApprovedRequest struct {
	ActorID   string  `json:"actor_id" binding:"required"`
	ActorRole string  `json:"actor_role" binding:"required"`
	Amount    float64 `json:"amount" binding:"required"`
}

type deleteDocumentRequest struct {
	ActorID   string `json:"actor_id" binding:"required"`
	ActorRole string `json:"actor_role" binding:"required"`
}

// CreateDocument handles POST /documents
func (h *Handler) CreateDocument(c *gin.Context) {
	var req createDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc, err := h.engine.CreateDocument(c.Request.Context(),
		workflow.DocumentType(req.DocumentType),
		req.OriginatorID,
		workflow.Role(req.OriginatorRole),
		req.Title,
		req.Payload,
	)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, doc)
}

// GetDocument handles GET /documents/:id
func (h *Handler) GetDocument(c *gin.Context) {
	doc, err := h.engine.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, doc)
}

// ApplyTransition handles POST /documents/:id/transitions
func (h *Handler) ApplyTransition(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc, err := h.engine.ApplyTransition(c.Request.Context(),
		c.Param("id"),
		req.ActorID,
		workflow.Role(req.ActorRole),
		workflow.Stage(req.TargetStage),
		req.Note,
	)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, doc)
}

// SetAmountApproved handles POST /documents/:id/amount-approved
func (h *Handler) SetAmountApproved(c *gin.Context) {
	var req amountApprovedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc, err := h.engine.SetAmountApproved(c.Request.Context(),
		c.Param("id"),
		req.ActorID,
		workflow.Role(req.ActorRole),
		req.Amount,
	)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, doc)
}

// GetHistory handles GET /documents/:id/history
func (h *Handler) GetHistory(c *gin.Context) {
	history, err := h.engine.GetHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": history})
}

// DeleteDocument handles DELETE /documents/:id
func (h *Handler) DeleteDocument(c *gin.Context) {
	var req deleteDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.engine.DeleteDocument(c.Request.Context(),
		c.Param("id"),
		req.ActorID,
		workflow.Role(req.ActorRole),
	)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListInbox handles GET /inbox?type=&stage=
func (h *Handler) ListInbox(c *gin.Context) {
	docType := c.Query("type")
	stage := c.Query("stage")
	if docType == "" || stage == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type and stage query parameters are required"})
		return
	}

	docs, err := h.engine.ListPending(c.Request.Context(),
		workflow.DocumentType(docType), workflow.Stage(stage))
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

// ExportInbox handles GET /inbox/export?type=&stage=
func (h *Handler) ExportInbox(c *gin.Context) {
	docType := c.Query("type")
	stage := c.Query("stage")
	if docType == "" || stage == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type and stage query parameters are required"})
		return
	}

	docs, err := h.engine.ListPending(c.Request.Context(),
		workflow.DocumentType(docType), workflow.Stage(stage))
	if err != nil {
		h.renderError(c, err)
		return
	}

	f, err := h.exporter.InboxWorkbook(docType, stage, docs)
	if err != nil {
		h.renderError(c, err)
		return
	}

	filename := fmt.Sprintf("inbox_%s_%s_%s.xlsx", docType, stage, time.Now().Format("20060102"))
	h.writeWorkbook(c, f, filename)
}

// ExportHistory handles GET /documents/:id/history/export
func (h *Handler) ExportHistory(c *gin.Context) {
	doc, err := h.engine.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}

	f, err := h.exporter.HistoryWorkbook(doc)
	if err != nil {
		h.renderError(c, err)
		return
	}

	filename := fmt.Sprintf("audit_%s.xlsx", doc.ID)
	h.writeWorkbook(c, f, filename)
}

func (h *Handler) writeWorkbook(c *gin.Context, f export.Workbook, filename string) {
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	if err := f.Write(c.Writer); err != nil {
		h.logger.Error("Failed to stream workbook", zap.Error(err))
	}
}

// renderError maps engine error kinds to HTTP status codes. Denials come back
// verbatim so the frontend can show an actionable message.
func (h *Handler) renderError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, workflow.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, workflow.ErrUnknownDocumentType):
		status = http.StatusBadRequest
	case errors.Is(err, workflow.ErrWrongRole):
		status = http.StatusForbidden
	case errors.Is(err, workflow.ErrTerminalStage),
		errors.Is(err, workflow.ErrIllegalTransition),
		errors.Is(err, workflow.ErrMissingFeedback):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, workflow.ErrConflict):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}

	c.JSON(status, gin.H{"error": err.Error()})
}
