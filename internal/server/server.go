// Package server exposes the admin REST API consumed by the console client.
package server

import (
	"net/http"
	"strings"

	"github.com/avkuzmin/contact-admin/internal/errs"
	"github.com/avkuzmin/contact-admin/internal/model"
	"github.com/avkuzmin/contact-admin/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server wires the auth service into HTTP handlers.
type Server struct {
	auth service.AuthService
	log  *zap.Logger
}

// New constructs a server with injected services.
func New(auth service.AuthService, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{auth: auth, log: log}
}

// Router builds the gin engine with all routes and middleware attached.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(Recovery(s.log), RequestLogger(s.log))

	u := r.Group("/users")
	{
		u.POST("/register", s.register)
		u.POST("/login", s.login)
		u.POST("/login-otp", s.loginOtp)
		u.POST("/verify-otp", s.verifyOtp)
		u.POST("/resend-otp", s.resendOtp)
		u.GET("/me", s.me)
		u.POST("/forgot-password/request", s.forgotRequest)
		u.POST("/forgot-password/confirm", s.forgotConfirm)
	}
	return r
}

type registerRequest struct {
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Phone     string `json:"phone"`
	Password  string `json:"password" binding:"required"`
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errs.E(errs.ErrValidation, "VALIDATION_001", "invalid request payload"))
		return
	}
	id, err := s.auth.Register(c.Request.Context(), model.Registration{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Password:  req.Password,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, gin.H{"userId": id})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errs.E(errs.ErrValidation, "VALIDATION_001", "invalid request payload"))
		return
	}
	out, err := s.auth.LoginWithIP(c.Request.Context(), req.Email, req.Password, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}

	if ch := out.Challenge; ch != nil {
		if ch.Stage == model.StageMFA {
			contact, medium := ch.Email.Contact, model.MediumEmail
			if !ch.Email.Required {
				contact, medium = ch.Phone.Contact, model.MediumPhone
			}
			respondData(c, http.StatusOK, gin.H{
				"requiresOtp": true,
				"contact":     contact,
				"medium":      string(medium),
			})
			return
		}
		payload := gin.H{"stage": string(ch.Stage)}
		if ch.Email.Required {
			payload["email"] = ch.Email.Contact
			payload["emailSent"] = ch.Email.Sent
		}
		if ch.Phone.Required {
			payload["phone"] = ch.Phone.Contact
			payload["phoneSent"] = ch.Phone.Sent
		}
		respondData(c, http.StatusOK, payload)
		return
	}
	respondData(c, http.StatusOK, gin.H{"token": out.Token})
}

type loginOtpRequest struct {
	Medium  string `json:"medium" binding:"required"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Purpose string `json:"purpose"`
}

func (s *Server) loginOtp(c *gin.Context) {
	var req loginOtpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errs.E(errs.ErrValidation, "VALIDATION_001", "invalid request payload"))
		return
	}
	contact := req.Email
	if model.OtpMedium(req.Medium) == model.MediumPhone {
		contact = req.Phone
	}
	purpose := model.OtpPurpose(req.Purpose)
	if purpose == "" {
		purpose = model.PurposeLogin
	}
	if err := s.auth.DispatchOtp(c.Request.Context(), model.OtpMedium(req.Medium), contact, purpose); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, http.StatusOK, "code sent", gin.H{"contact": contact, "medium": req.Medium})
}

type verifyOtpRequest struct {
	Purpose string `json:"purpose" binding:"required"`
	Contact string `json:"contact" binding:"required"`
	Code    string `json:"code" binding:"required"`
}

func (s *Server) verifyOtp(c *gin.Context) {
	var req verifyOtpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errs.E(errs.ErrValidation, "VALIDATION_001", "invalid request payload"))
		return
	}
	out, err := s.auth.VerifyOtp(c.Request.Context(), model.OtpPurpose(strings.ToLower(req.Purpose)), req.Contact, req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	if out.Token == "" {
		respondMessage(c, http.StatusOK, "verified", gin.H{"verified": true})
		return
	}
	respondData(c, http.StatusOK, gin.H{"token": out.Token, "user": out.User})
}

type resendOtpRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Purpose    string `json:"purpose" binding:"required"`
}

func (s *Server) resendOtp(c *gin.Context) {
	var req resendOtpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errs.E(errs.ErrValidation, "VALIDATION_001", "invalid request payload"))
		return
	}
	if err := s.auth.ResendOtp(c.Request.Context(), req.Identifier, model.OtpPurpose(strings.ToLower(req.Purpose))); err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{"sent": true})
}

func (s *Server) me(c *gin.Context) {
	bearer := bearerToken(c)
	if bearer == "" {
		respondError(c, errs.E(errs.ErrSessionExpired, "AUTH_002", "missing bearer token"))
		return
	}
	p, err := s.auth.CurrentUser(c.Request.Context(), bearer)
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, p)
}

type forgotRequest struct {
	Identifier string `json:"identifier" binding:"required"`
}

func (s *Server) forgotRequest(c *gin.Context) {
	var req forgotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errs.E(errs.ErrValidation, "VALIDATION_001", "invalid request payload"))
		return
	}
	if err := s.auth.RequestPasswordReset(c.Request.Context(), req.Identifier); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, http.StatusOK, "reset code sent", nil)
}

type forgotConfirmRequest struct {
	Identifier  string `json:"identifier" binding:"required"`
	Code        string `json:"code" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

func (s *Server) forgotConfirm(c *gin.Context) {
	var req forgotConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errs.E(errs.ErrValidation, "VALIDATION_001", "invalid request payload"))
		return
	}
	if err := s.auth.ResetPassword(c.Request.Context(), req.Identifier, req.Code, req.NewPassword); err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, http.StatusOK, "password updated", nil)
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
