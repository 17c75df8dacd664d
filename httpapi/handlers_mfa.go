package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type mfaVerifyRequest struct {
	Code string `json:"code" binding:"required,max=16"`
	// SecretKey is accepted for client compatibility; the pending secret
	// stored at setup is what gets checked.
	SecretKey string `json:"secretKey"`
}

type mfaLoginRequest struct {
	Email string `json:"email" binding:"required,email,max=255"`
	Code  string `json:"code" binding:"required,max=16"`
}

type mfaHandler struct {
	svc     Service
	cookies *cookieJar
}

func (h *mfaHandler) setup(c *gin.Context) {
	setup, err := h.svc.BeginMFASetup(c.Request.Context(), principal(c).UserID)
	if err != nil {
		RespondError(c, err)
		return
	}

	if setup.AlreadyEnabled {
		c.JSON(http.StatusOK, gin.H{"message": "MFA already enabled"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Scan the QR code or use the setup key",
		"secret":     setup.Secret,
		"setupUri":   setup.SetupURI,
		"qrImageUrl": setup.QRImageURL,
	})
}

func (h *mfaHandler) verify(c *gin.Context) {
	var req mfaVerifyRequest
	if err := bind(c, &req); err != nil {
		RespondError(c, err)
		return
	}

	changed, err := h.svc.ConfirmMFASetup(c.Request.Context(), principal(c).UserID, req.Code)
	if err != nil {
		RespondError(c, err)
		return
	}

	message := "MFA setup completed successfully"
	if !changed {
		message = "MFA is already enabled"
	}
	c.JSON(http.StatusOK, gin.H{"message": message, "userPreferences": gin.H{"enable2FA": true}})
}

func (h *mfaHandler) verifyLogin(c *gin.Context) {
	var req mfaLoginRequest
	if err := bind(c, &req); err != nil {
		RespondError(c, err)
		return
	}

	res, err := h.svc.VerifyMFAForLogin(c.Request.Context(), req.Email, req.Code, c.Request.UserAgent())
	if err != nil {
		RespondError(c, err)
		return
	}

	h.cookies.setPair(c, res.Tokens.AccessToken, res.Tokens.RefreshToken)
	c.JSON(http.StatusOK, gin.H{"message": "Verified login successfully", "data": res.User})
}

func (h *mfaHandler) revoke(c *gin.Context) {
	changed, err := h.svc.RevokeMFA(c.Request.Context(), principal(c).UserID)
	if err != nil {
		RespondError(c, err)
		return
	}

	message := "MFA revoke successfully"
	if !changed {
		message = "MFA is not enabled"
	}
	c.JSON(http.StatusOK, gin.H{"message": message, "userPreferences": gin.H{"enable2FA": false}})
}
