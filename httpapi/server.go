// Package httpapi exposes the command and query surface over HTTP. Callers
// authenticate with a pre-shared key; this API is meant for trusted backend
// peers, not end users.
package httpapi

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tompro/payday/command"
	"github.com/tompro/payday/query/query"
)

// AuthHeader carries the pre-shared key on every request.
const AuthHeader = "X-Api-Key"

// Server wires the HTTP routes to the command and query handlers.
type Server struct {
	router *gin.Engine
	psk    string

	createInvoice *command.CreateInvoiceHandler
	cancelInvoice *command.CancelInvoiceHandler
	sendPayment   *command.SendPaymentHandler
	getInvoice    *query.GetInvoiceByIDHandler
	getPayout     *query.GetPayoutByIDHandler
}

// NewServer creates the server and registers all routes.
func NewServer(
	psk string,
	createInvoice *command.CreateInvoiceHandler,
	cancelInvoice *command.CancelInvoiceHandler,
	sendPayment *command.SendPaymentHandler,
	getInvoice *query.GetInvoiceByIDHandler,
	getPayout *query.GetPayoutByIDHandler,
) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:        router,
		psk:           psk,
		createInvoice: createInvoice,
		cancelInvoice: cancelInvoice,
		sendPayment:   sendPayment,
		getInvoice:    getInvoice,
		getPayout:     getPayout,
	}

	router.GET("/healthz", s.handleHealth)

	api := router.Group("/v1", s.requireAuth)
	{
		api.POST("/invoices", s.handleCreateInvoice)
		api.GET("/invoices/:id", s.handleGetInvoice)
		api.POST("/invoices/:id/cancel", s.handleCancelInvoice)
		api.POST("/payments", s.handleSendPayment)
		api.GET("/payments/:id", s.handleGetPayout)
	}

	return s
}

// Run starts the HTTP server.
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

// Handler exposes the underlying http.Handler for tests and custom servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

// requireAuth rejects requests without the correct pre-shared key.
func (s *Server) requireAuth(c *gin.Context) {
	key := c.GetHeader(AuthHeader)
	if subtle.ConstantTimeCompare([]byte(key), []byte(s.psk)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
		return
	}
	c.Next()
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
