package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type sessionHandler struct {
	svc Service
}

func (h *sessionHandler) list(c *gin.Context) {
	p := principal(c)
	sessions, err := h.svc.ListSessions(c.Request.Context(), p.UserID, p.SessionID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Retrieving all sessions successfully", "sessions": sessions})
}

func (h *sessionHandler) current(c *gin.Context) {
	_, user, err := h.svc.GetSession(c.Request.Context(), principal(c).SessionID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session retrieved successfully", "user": user})
}

func (h *sessionHandler) remove(c *gin.Context) {
	p := principal(c)
	if err := h.svc.DeleteSession(c.Request.Context(), p.UserID, c.Param("id"), p.SessionID); err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session remove successfully"})
}
