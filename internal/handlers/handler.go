package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harentsoaR/clinic-rbac/internal/apperrors"
	"github.com/harentsoaR/clinic-rbac/internal/auth"
	"github.com/harentsoaR/clinic-rbac/internal/logger"
	"github.com/harentsoaR/clinic-rbac/internal/middleware"
	"github.com/harentsoaR/clinic-rbac/internal/models"
	"github.com/harentsoaR/clinic-rbac/internal/services"
)

type Handler struct {
	Registry  *services.Registry
	Verifier  *auth.CredentialVerifier
	Validator *auth.TokenValidator
	Log       *logger.Logger
}

func NewHandler(registry *services.Registry, verifier *auth.CredentialVerifier, validator *auth.TokenValidator, log *logger.Logger) *Handler {
	return &Handler{
		Registry:  registry,
		Verifier:  verifier,
		Validator: validator,
		Log:       log,
	}
}

// principal returns the authenticated caller, or writes a 401 and returns false.
func principal(c *gin.Context) (models.Principal, bool) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
	}
	return p, ok
}

// objectID parses the named path parameter, writing a 400 on failure.
func objectID(c *gin.Context, param string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + param})
		return primitive.NilObjectID, false
	}
	return id, true
}

func bodyID(c *gin.Context, field, value string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(value)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + field})
		return primitive.NilObjectID, false
	}
	return id, true
}

// respondError maps the error taxonomy to a status. Deny reasons stay in the logs.
func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
	case errors.Is(err, apperrors.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
	case errors.Is(err, apperrors.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrRoleMismatch), errors.Is(err, apperrors.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.Log.WithComponent("http").WithError(err).
			WithField("request_id", c.GetString("request_id")).
			Error("Unhandled error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
