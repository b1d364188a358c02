package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/mediatap/classify"
	"github.com/use-agent/mediatap/models"
)

// Classify returns a handler for POST /api/v1/classify. It reports every
// heuristic verdict for a URL and/or content type without recording
// anything. def is the profile used when the request names none.
func Classify(def classify.Profile) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ClassifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if req.URL == "" && req.ContentType == "" {
			badRequest(c, "url or content_type is required")
			return
		}

		profile := def
		if req.Profile != "" {
			profile = classify.ParseProfile(req.Profile)
		}

		resp := models.ClassifyResponse{
			URL:              req.URL,
			ContentType:      req.ContentType,
			Profile:          string(profile),
			Extension:        classify.HasMediaExtension(req.URL),
			Keyword:          classify.HasMediaKeyword(req.URL),
			LooksLikeMedia:   profile.LooksLikeMedia(req.URL),
			MediaContentType: classify.IsMediaContentType(req.ContentType),
		}
		// A response header decides on its own, as it does during capture.
		if req.ContentType != "" {
			resp.Accepted = resp.MediaContentType
		} else {
			resp.Accepted = resp.LooksLikeMedia
		}
		c.JSON(http.StatusOK, resp)
	}
}
