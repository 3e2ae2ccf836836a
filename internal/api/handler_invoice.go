package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"clientportal/config"
	"clientportal/internal/model"
	"clientportal/internal/repository"
	"clientportal/internal/service/invoice"
	"clientportal/internal/service/payment"
)

type InvoiceHandler struct {
	paymentService *payment.Service
	paymentHandler *PaymentHandler
	projectRepo    *repository.ProjectRepository
	clientRepo     *repository.ClientRepository
	renderer       *invoice.Renderer
	billing        config.BillingConfig
}

func NewInvoiceHandler(
	paymentService *payment.Service,
	paymentHandler *PaymentHandler,
	projectRepo *repository.ProjectRepository,
	clientRepo *repository.ClientRepository,
	renderer *invoice.Renderer,
	billing config.BillingConfig,
) *InvoiceHandler {
	return &InvoiceHandler{
		paymentService: paymentService,
		paymentHandler: paymentHandler,
		projectRepo:    projectRepo,
		clientRepo:     clientRepo,
		renderer:       renderer,
		billing:        billing,
	}
}

// Download handles GET /payments/:id/invoice and streams the PDF.
func (h *InvoiceHandler) Download(c *gin.Context) {
	obligationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}

	if !h.paymentHandler.authorizeObligation(c, obligationID) {
		return
	}

	obligation, err := h.paymentService.GetByID(c.Request.Context(), obligationID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load payment"})
		return
	}

	project, err := h.projectRepo.GetByID(c.Request.Context(), obligation.ProjectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load project"})
		return
	}
	client, err := h.clientRepo.GetByID(c.Request.Context(), project.ClientID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load client"})
		return
	}

	dueDate := "Upon receipt"
	if obligation.DueDate != nil {
		dueDate = obligation.DueDate.Format("02 Jan 2006")
	}

	pdf, err := h.renderer.Render(invoice.Data{
		CompanyName:     h.billing.CompanyName,
		ReferenceNumber: obligation.ReferenceNumber,
		ClientName:      client.Name,
		BusinessName:    client.BusinessName,
		ProjectName:     project.Name,
		Amount:          obligation.Amount,
		Currency:        h.billing.Currency,
		DueDate:         dueDate,
		Status:          obligation.Status,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render invoice"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pdf", obligation.ReferenceNumber))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
