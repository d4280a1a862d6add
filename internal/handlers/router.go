package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter wires the HTTP API. Every route except /health and the funding
// feed requires a bearer token.
func NewRouter(h *Handler, verifier TokenVerifier, hub *Hub) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), RequestLogger())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	// WebSocket endpoint
	router.GET("/ws/opportunities", hub.HandleWebSocket)

	api := router.Group("/", RequireAuth(verifier))
	{
		api.POST("/investment/add", h.AddInvestment)
		api.PUT("/investment/update", h.UpdateInvestment)
		api.POST("/investment/withdraw", h.WithdrawInvestment)
		api.POST("/investment/transfer", h.TransferInvestment)
		api.POST("/investment/exit", h.ExitInvestment)

		api.POST("/payment", h.CreatePayment)

		api.GET("/profile", h.GetProfile)
		api.GET("/opportunities", h.GetOpportunities)
		api.GET("/transactions", h.GetTransactions)
	}

	return router
}
