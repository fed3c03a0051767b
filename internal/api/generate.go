package api

import (
	"net/http" // HTTP status codes

	"credit_ledger/internal/generate" // Metered generation

	"github.com/gin-gonic/gin" // Gin web framework
)

// GenerateHandler runs a metered generation. With "stream": true the content is
// relayed as server-sent "message" events followed by a "done" event.
func GenerateHandler(svc *generate.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if svc == nil {
			failure(c, http.StatusServiceUnavailable, "Generation is not configured", nil)
			return
		}
		var req generate.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			failure(c, http.StatusBadRequest, "Invalid request", err)
			return
		}
		userID := c.Param("userId")

		if !req.Stream {
			res, err := svc.Generate(c.Request.Context(), userID, req, nil)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "result": res})
			return
		}

		// Headers go out with the first delta so early failures still get a JSON status
		streaming := false
		res, err := svc.Generate(c.Request.Context(), userID, req, func(content string) {
			if !streaming {
				c.Header("Content-Type", "text/event-stream")
				c.Header("Cache-Control", "no-cache")
				c.Header("Connection", "keep-alive")
				streaming = true
			}
			c.SSEvent("message", content)
			c.Writer.Flush()
		})
		if err != nil {
			if !streaming {
				respondError(c, err)
				return
			}
			c.SSEvent("error", gin.H{"success": false, "error": "Generation failed"})
			c.Writer.Flush()
			return
		}
		// Content was already streamed
		res.Content = ""
		c.SSEvent("done", gin.H{"success": true, "result": res})
		c.Writer.Flush()
	}
}
