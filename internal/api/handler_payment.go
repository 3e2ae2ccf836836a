package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"clientportal/internal/model"
	"clientportal/internal/repository"
	"clientportal/internal/service/payment"
	"clientportal/pkg/rbac"
)

type PaymentHandler struct {
	paymentService *payment.Service
	projectRepo    *repository.ProjectRepository
	clientRepo     *repository.ClientRepository
}

func NewPaymentHandler(
	paymentService *payment.Service,
	projectRepo *repository.ProjectRepository,
	clientRepo *repository.ClientRepository,
) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		projectRepo:    projectRepo,
		clientRepo:     clientRepo,
	}
}

// ListByProject handles GET /projects/:id/payments
func (h *PaymentHandler) ListByProject(c *gin.Context) {
	projectID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	if !h.authorizeProject(c, projectID) {
		return
	}

	obligations, err := h.paymentService.ListByProject(c.Request.Context(), projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list payments"})
		return
	}

	out := make([]gin.H, 0, len(obligations))
	for _, o := range obligations {
		out = append(out, obligationJSON(o))
	}
	c.JSON(http.StatusOK, gin.H{"payments": out})
}

// Submit handles POST /payments/:id/submit (client records payment details).
func (h *PaymentHandler) Submit(c *gin.Context) {
	obligationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}

	var req struct {
		TransactionID  string    `json:"transaction_id"`
		PaymentChannel string    `json:"payment_channel"`
		BankName       string    `json:"bank_name"`
		PaymentDate    time.Time `json:"payment_date"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if !h.authorizeObligation(c, obligationID) {
		return
	}

	paymentDate := req.PaymentDate
	if paymentDate.IsZero() {
		paymentDate = time.Now()
	}

	obligation, err := h.paymentService.Submit(c.Request.Context(), obligationID, model.PaymentSubmission{
		TransactionID:  req.TransactionID,
		PaymentChannel: req.PaymentChannel,
		BankName:       req.BankName,
		PaymentDate:    paymentDate,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, obligationJSON(obligation))
}

// Approve handles POST /payments/:id/approve (admin only).
func (h *PaymentHandler) Approve(c *gin.Context) {
	obligationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}

	obligation, err := h.paymentService.Approve(c.Request.Context(), obligationID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, obligationJSON(obligation))
}

// RequestResubmission handles POST /payments/:id/resubmission (admin only).
func (h *PaymentHandler) RequestResubmission(c *gin.Context) {
	obligationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}

	obligation, err := h.paymentService.RequestResubmission(c.Request.Context(), obligationID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, obligationJSON(obligation))
}

// CreateManual handles POST /projects/:id/payments (admin only).
func (h *PaymentHandler) CreateManual(c *gin.Context) {
	projectID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	var req struct {
		Amount  string     `json:"amount" binding:"required"`
		DueDate *time.Time `json:"due_date"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}

	obligation, err := h.paymentService.CreateManual(c.Request.Context(), projectID, amount, req.DueDate)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, obligationJSON(obligation))
}

func (h *PaymentHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
	case errors.Is(err, model.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "payment is not in a state that allows this action"})
	case errors.Is(err, model.ErrTransactionIDRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "transaction_id is required"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "payment operation failed"})
	}
}

// authorizeProject ensures a client role only touches their own project.
func (h *PaymentHandler) authorizeProject(c *gin.Context, projectID int64) bool {
	if c.GetString("role") != rbac.RoleClient {
		return true
	}

	project, err := h.projectRepo.GetByID(c.Request.Context(), projectID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
			return false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load project"})
		return false
	}

	client, err := h.clientRepo.GetByUserID(c.Request.Context(), c.GetInt64("user_id"))
	if err != nil || client.ID != project.ClientID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your project"})
		return false
	}
	return true
}

func (h *PaymentHandler) authorizeObligation(c *gin.Context, obligationID int64) bool {
	if c.GetString("role") != rbac.RoleClient {
		return true
	}

	obligation, err := h.paymentService.GetByID(c.Request.Context(), obligationID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
			return false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load payment"})
		return false
	}
	return h.authorizeProject(c, obligation.ProjectID)
}

func obligationJSON(o *model.PaymentObligation) gin.H {
	out := gin.H{
		"id":               o.ID,
		"project_id":       o.ProjectID,
		"kind":             o.Kind,
		"amount":           o.Amount.String(),
		"status":           o.Status,
		"is_automatic":     o.IsAutomatic,
		"reference_number": o.ReferenceNumber,
		"due_date":         o.DueDate,
		"created_at":       o.CreatedAt,
	}
	if o.TransactionID != nil {
		out["transaction_id"] = *o.TransactionID
	}
	if o.PaymentChannel != nil {
		out["payment_channel"] = *o.PaymentChannel
	}
	if o.SubmittedAt != nil {
		out["submitted_at"] = *o.SubmittedAt
	}
	if o.PaidAt != nil {
		out["paid_at"] = *o.PaidAt
	}
	return out
}
