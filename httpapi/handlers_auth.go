package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MrEthical07/sessionauth"
)

type registerRequest struct {
	FirstName       string `json:"firstName" binding:"required,max=255"`
	LastName        string `json:"lastName" binding:"required,max=255"`
	Username        string `json:"username" binding:"required,alphanum,min=3,max=255"`
	Email           string `json:"email" binding:"required,email,max=255"`
	Phone           string `json:"phone" binding:"required,e164"`
	Password        string `json:"password" binding:"required,min=6,max=255"`
	ConfirmPassword string `json:"confirmPassword" binding:"required,eqfield=Password"`
}

type loginRequest struct {
	Identifier string `json:"identifier" binding:"required,max=255"`
	Password   string `json:"password" binding:"required,max=255"`
}

type verifyEmailRequest struct {
	Code string `json:"code" binding:"required,max=64"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email,max=255"`
}

type resetPasswordRequest struct {
	Password         string `json:"password" binding:"required,min=6,max=255"`
	ConfirmPassword  string `json:"confirmPassword" binding:"required,eqfield=Password"`
	VerificationCode string `json:"verificationCode" binding:"required,max=64"`
}

type authHandler struct {
	svc     Service
	cookies *cookieJar
}

func (h *authHandler) register(c *gin.Context) {
	var req registerRequest
	if err := bind(c, &req); err != nil {
		RespondError(c, err)
		return
	}

	user, err := h.svc.Register(c.Request.Context(), sessionauth.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
		Email:     req.Email,
		Phone:     req.Phone,
		Password:  req.Password,
	})
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully", "data": user})
}

func (h *authHandler) login(c *gin.Context) {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		RespondError(c, err)
		return
	}

	res, err := h.svc.Login(c.Request.Context(), req.Identifier, req.Password, c.Request.UserAgent())
	if err != nil {
		RespondError(c, err)
		return
	}

	if res.MFARequired {
		c.JSON(http.StatusOK, gin.H{"message": "Verify MFA authentication", "mfaRequired": true})
		return
	}

	h.cookies.setPair(c, res.Tokens.AccessToken, res.Tokens.RefreshToken)
	c.JSON(http.StatusOK, gin.H{"message": "User login successfully", "mfaRequired": false, "data": res.User})
}

// refresh clears both cookies on any failure.
func (h *authHandler) refresh(c *gin.Context) {
	token, err := c.Cookie(refreshTokenCookie)
	if err != nil || token == "" {
		h.cookies.clearPair(c)
		RespondError(c, sessionauth.ErrUnauthorized)
		return
	}

	res, err := h.svc.Refresh(c.Request.Context(), token)
	if err != nil {
		h.cookies.clearPair(c)
		RespondError(c, err)
		return
	}

	if res.RefreshToken != "" {
		h.cookies.setRefresh(c, res.RefreshToken)
	}
	h.cookies.setAccess(c, res.AccessToken)
	c.JSON(http.StatusOK, gin.H{"message": "Refresh access token successfully"})
}

func (h *authHandler) verifyEmail(c *gin.Context) {
	var req verifyEmailRequest
	if err := bind(c, &req); err != nil {
		RespondError(c, err)
		return
	}

	if _, err := h.svc.VerifyEmail(c.Request.Context(), req.Code); err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Email verified successfully"})
}

func (h *authHandler) forgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := bind(c, &req); err != nil {
		RespondError(c, err)
		return
	}

	if _, err := h.svc.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password reset email sent"})
}

func (h *authHandler) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := bind(c, &req); err != nil {
		RespondError(c, err)
		return
	}

	if err := h.svc.ResetPassword(c.Request.Context(), req.VerificationCode, req.Password); err != nil {
		RespondError(c, err)
		return
	}

	h.cookies.clearPair(c)
	c.JSON(http.StatusOK, gin.H{"message": "Reset password successfully"})
}

func (h *authHandler) logout(c *gin.Context) {
	p := principal(c)
	if p.SessionID == "" {
		RespondError(c, sessionauth.ErrUnauthorized)
		return
	}

	if err := h.svc.Logout(c.Request.Context(), p.SessionID); err != nil {
		RespondError(c, err)
		return
	}

	h.cookies.clearPair(c)
	c.JSON(http.StatusOK, gin.H{"message": "User logout successfully"})
}

func (h *authHandler) currentUser(c *gin.Context) {
	user, err := h.svc.CurrentUser(c.Request.Context(), principal(c).UserID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User fetched successfully", "user": user})
}
