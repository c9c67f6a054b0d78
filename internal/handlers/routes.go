package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/harentsoaR/clinic-rbac/internal/middleware"
)

// RegisterRoutes mounts the API on r. Everything under /auth except login
// requires a bearer token.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authRoutes := r.Group("/auth")
	authRoutes.POST("/login", h.Login)

	protected := authRoutes.Group("")
	protected.Use(middleware.AuthMiddleware(h.Validator))
	{
		protected.POST("/logout", h.Logout)
		protected.GET("/me", h.GetCurrentUser)

		// Users and the doctor hierarchy
		protected.POST("/register", h.RegisterUser)
		protected.GET("/users", h.GetUsers)
		protected.GET("/users/:id", h.GetUser)
		protected.PUT("/users/:id", h.UpdateUser)
		protected.POST("/assign-doctor", h.AssignConsultingDoctor)
		protected.POST("/unassign-doctor", h.UnassignConsultingDoctor)

		// Patients
		protected.POST("/patients", h.CreatePatient)
		protected.GET("/patients", h.GetPatients)
		protected.GET("/patients/:id", h.GetPatient)
		protected.PUT("/patients/:id", h.UpdatePatient)
		protected.PUT("/patients/:id/assign-doctor", h.AssignPatientDoctor)
		protected.PUT("/patients/:id/unassign-doctor", h.UnassignPatientDoctor)
		protected.PUT("/patients/:id/close-case", h.ClosePatientCase)
		protected.POST("/patients/:id/files", h.AddPatientFile)
		protected.GET("/patients/:id/files", h.GetPatientFiles)
		protected.DELETE("/patients/:id/files/:fileId", h.DeletePatientFile)
	}
}
