package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/mediatap/message"
	"github.com/use-agent/mediatap/models"
)

// Messages returns a handler for POST /api/v1/messages, the tagged
// request protocol shared with the page-side clients.
func Messages(h *message.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var m message.Message
		if err := c.ShouldBindJSON(&m); err != nil {
			badRequest(c, err.Error())
			return
		}
		resp, err := h.Handle(m)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// ListURLs returns a handler for GET /api/v1/urls.
func ListURLs(h *message.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, h.List())
	}
}

// ClearURLs returns a handler for DELETE /api/v1/urls.
func ClearURLs(h *message.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, h.Clear())
	}
}

// AddURL returns a handler for POST /api/v1/urls.
func AddURL(h *message.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.AddURLRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		c.JSON(http.StatusOK, h.Add(req.URL, req.Source))
	}
}

// Export returns a handler for GET /api/v1/export. The snapshot is served
// as an attachment so browsers save it like the original export file.
func Export(h *message.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, err := h.Handle(message.Message{Type: message.ExportJSON})
		if err != nil {
			respondError(c, err)
			return
		}
		if c.Query("download") != "" {
			c.Header("Content-Disposition", `attachment; filename="captured-urls.json"`)
		}
		c.JSON(http.StatusOK, resp)
	}
}

// Downloads returns a handler for GET /api/v1/downloads.
func Downloads(h *message.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, err := h.Handle(message.Message{Type: message.GetDownloadedURLs})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}
