package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/harentsoaR/clinic-rbac/internal/services"
)

type RegisterUserRequest struct {
	FullName       string `json:"fullName"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	Role           string `json:"role"`
	Phone          string `json:"phone"`
	Specialization string `json:"specialization"`
}

type UpdateUserRequest struct {
	FullName       *string `json:"fullName"`
	Email          *string `json:"email"`
	Phone          *string `json:"phone"`
	Specialization *string `json:"specialization"`
	Password       *string `json:"password"`
	Role           *string `json:"role"`
	IsActive       *bool   `json:"isActive"`
}

type assignConsultingRequest struct {
	ConsultingDoctorID string `json:"consultingDoctorId" binding:"required"`
	SeniorDoctorID     string `json:"seniorDoctorId" binding:"required"`
}

type unassignConsultingRequest struct {
	ConsultingDoctorID string `json:"consultingDoctorId" binding:"required"`
}

// RegisterUser is admin only. Validation of the body happens after the
// permission check, so a non-admin always gets 403.
func (h *Handler) RegisterUser(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req RegisterUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req = RegisterUserRequest{}
	}

	user, err := h.Registry.RegisterUser(c.Request.Context(), p, services.RegisterUserInput{
		FullName:       req.FullName,
		Email:          req.Email,
		Password:       req.Password,
		Role:           req.Role,
		Phone:          req.Phone,
		Specialization: req.Specialization,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	// `json:"-"` on User.Password keeps the hash out of the response.
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

func (h *Handler) Login(c *gin.Context) {
	var loginReq struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&loginReq); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	result, err := h.Verifier.Login(c.Request.Context(), loginReq.Email, loginReq.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":     result.Token,
		"expiresAt": result.ExpiresAt,
		"user":      result.User,
	})
}

// Logout only acknowledges; tokens are not revoked and expire on their own.
func (h *Handler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// GetCurrentUser returns the caller and its place in the doctor hierarchy.
func (h *Handler) GetCurrentUser(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	user, hierarchy, err := h.Registry.Me(c.Request.Context(), p)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "hierarchy": hierarchy})
}

func (h *Handler) GetUsers(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	includeInactive, _ := strconv.ParseBool(c.Query("includeInactive"))

	users, err := h.Registry.ListUsers(c.Request.Context(), p, includeInactive)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}

func (h *Handler) GetUser(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := objectID(c, "id")
	if !ok {
		return
	}
	user, err := h.Registry.GetUser(c.Request.Context(), p, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// UpdateUser applies only the fields present in the body.
func (h *Handler) UpdateUser(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := objectID(c, "id")
	if !ok {
		return
	}
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	user, err := h.Registry.UpdateUser(c.Request.Context(), p, id, services.UpdateUserInput{
		FullName:       req.FullName,
		Email:          req.Email,
		Phone:          req.Phone,
		Specialization: req.Specialization,
		Password:       req.Password,
		Role:           req.Role,
		IsActive:       req.IsActive,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// AssignConsultingDoctor moves a consulting doctor under a senior doctor.
func (h *Handler) AssignConsultingDoctor(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req assignConsultingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "consultingDoctorId and seniorDoctorId are required"})
		return
	}
	consultingID, ok := bodyID(c, "consultingDoctorId", req.ConsultingDoctorID)
	if !ok {
		return
	}
	seniorID, ok := bodyID(c, "seniorDoctorId", req.SeniorDoctorID)
	if !ok {
		return
	}

	user, err := h.Registry.AssignConsultingDoctor(c.Request.Context(), p, seniorID, consultingID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Doctor assigned", "user": user})
}

func (h *Handler) UnassignConsultingDoctor(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req unassignConsultingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "consultingDoctorId is required"})
		return
	}
	consultingID, ok := bodyID(c, "consultingDoctorId", req.ConsultingDoctorID)
	if !ok {
		return
	}

	user, err := h.Registry.UnassignConsultingDoctor(c.Request.Context(), p, consultingID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Doctor unassigned", "user": user})
}
