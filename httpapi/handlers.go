package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tompro/payday/command"
	"github.com/tompro/payday/payment"
	"github.com/tompro/payday/query/query"
)

type createInvoiceRequest struct {
	Currency   payment.Currency `json:"currency"`
	Amount     uint64           `json:"amount" binding:"required"`
	Memo       string           `json:"memo"`
	TTLSeconds int64            `json:"ttl_seconds"`
}

const defaultInvoiceTTL = time.Hour

func (s *Server) handleCreateInvoice(c *gin.Context) {
	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Currency == "" {
		req.Currency = payment.BTC
	}
	ttl := defaultInvoiceTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	invoice, err := s.createInvoice.Handle(c.Request.Context(), command.CreateInvoice{
		ID:     uuid.New(),
		Amount: payment.NewAmount(req.Currency, req.Amount),
		Memo:   req.Memo,
		TTL:    ttl,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, invoice)
}

func (s *Server) handleGetInvoice(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice id"})
		return
	}

	invoiceView, err := s.getInvoice.Query(c.Request.Context(), query.GetInvoiceByID{ID: id})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoiceView)
}

type cancelInvoiceRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleCancelInvoice(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice id"})
		return
	}

	// The body is optional; an empty cancellation reason is allowed.
	var req cancelInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	applied, err := s.cancelInvoice.Handle(c.Request.Context(), command.CancelInvoice{
		InvoiceID: id,
		Reason:    req.Reason,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"canceled": applied})
}

type sendPaymentRequest struct {
	PaymentRequest string           `json:"payment_request" binding:"required"`
	Currency       payment.Currency `json:"currency"`
	Amount         uint64           `json:"amount" binding:"required"`
}

func (s *Server) handleSendPayment(c *gin.Context) {
	var req sendPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Currency == "" {
		req.Currency = payment.BTC
	}

	payout, err := s.sendPayment.Handle(c.Request.Context(), command.SendPayment{
		ID:             uuid.New(),
		PaymentRequest: req.PaymentRequest,
		Amount:         payment.NewAmount(req.Currency, req.Amount),
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payout)
}

func (s *Server) handleGetPayout(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}

	payoutView, err := s.getPayout.Query(c.Request.Context(), query.GetPayoutByID{ID: id})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, payoutView)
}

// writeError maps domain errors to HTTP status codes.
func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, query.ErrInvoiceNotFound), errors.Is(err, query.ErrPayoutNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, command.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
