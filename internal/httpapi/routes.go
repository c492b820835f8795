package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Register mounts the API routes on the gin engine
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		v1.POST("/documents", h.CreateDocument)
		v1.GET("/documents/:id", h.GetDocument)
		v1.DELETE("/documents/:id", h.DeleteDocument)
		v1.POST("/documents/:id/transitions", h.ApplyTransition)
		v1.POST("/documents/:id/amount-approved", h.SetAmountApproved)
		v1.GET("/documents/:id/history", h.GetHistory)
		v1.GET("/documents/:id/history/export", h.ExportHistory)
		v1.GET("/inbox", h.ListInbox)
		v1.GET("/inbox/export", h.ExportInbox)
	}
}
