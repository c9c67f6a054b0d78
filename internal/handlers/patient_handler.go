package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/harentsoaR/clinic-rbac/internal/services"
)

type createPatientRequest struct {
	PatientID string `json:"patientId"`
	FullName  string `json:"fullName" binding:"required"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Notes     string `json:"notes"`
}

type updatePatientRequest struct {
	FullName *string `json:"fullName"`
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
	Notes    *string `json:"notes"`
}

type assignPatientDoctorRequest struct {
	DoctorID string `json:"doctorId" binding:"required"`
}

type addFileRequest struct {
	FileName    string `json:"fileName" binding:"required"`
	ContentType string `json:"contentType"`
	StorageKey  string `json:"storageKey" binding:"required"`
}

// --- CREATE PATIENT ---
func (h *Handler) CreatePatient(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req createPatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	patient, err := h.Registry.CreatePatient(c.Request.Context(), p, services.CreatePatientInput{
		PatientID: req.PatientID,
		FullName:  req.FullName,
		Email:     req.Email,
		Phone:     req.Phone,
		Notes:     req.Notes,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"patient": patient})
}

// --- GET PATIENTS (visibility filtered, optional ?status=active|case_closed) ---
func (h *Handler) GetPatients(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	patients, err := h.Registry.ListPatients(c.Request.Context(), p, c.Query("status"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"patients": patients, "count": len(patients)})
}

func (h *Handler) GetPatient(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := objectID(c, "id")
	if !ok {
		return
	}
	patient, err := h.Registry.GetPatient(c.Request.Context(), p, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"patient": patient})
}

// --- UPDATE PATIENT ---
func (h *Handler) UpdatePatient(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := objectID(c, "id")
	if !ok {
		return
	}
	var req updatePatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	patient, err := h.Registry.UpdatePatient(c.Request.Context(), p, id, services.UpdatePatientInput{
		FullName: req.FullName,
		Email:    req.Email,
		Phone:    req.Phone,
		Notes:    req.Notes,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"patient": patient})
}

// --- ASSIGN / UNASSIGN DOCTOR ---
func (h *Handler) AssignPatientDoctor(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := objectID(c, "id")
	if !ok {
		return
	}
	var req assignPatientDoctorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "doctorId is required"})
		return
	}
	doctorID, ok := bodyID(c, "doctorId", req.DoctorID)
	if !ok {
		return
	}

	patient, err := h.Registry.AssignDoctorToPatient(c.Request.Context(), p, id, doctorID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"patient": patient})
}

func (h *Handler) UnassignPatientDoctor(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := objectID(c, "id")
	if !ok {
		return
	}
	patient, err := h.Registry.UnassignDoctorFromPatient(c.Request.Context(), p, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"patient": patient})
}

// --- CLOSE CASE (no reopen) ---
func (h *Handler) ClosePatientCase(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := objectID(c, "id")
	if !ok {
		return
	}
	patient, err := h.Registry.ClosePatientCase(c.Request.Context(), p, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Case closed", "patient": patient})
}

// --- PATIENT FILES (metadata only) ---
func (h *Handler) AddPatientFile(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := objectID(c, "id")
	if !ok {
		return
	}
	var req addFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fileName and storageKey are required"})
		return
	}

	file, err := h.Registry.AddPatientFile(c.Request.Context(), p, id, services.AddFileInput{
		FileName:    req.FileName,
		ContentType: req.ContentType,
		StorageKey:  req.StorageKey,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"file": file})
}

func (h *Handler) GetPatientFiles(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := objectID(c, "id")
	if !ok {
		return
	}
	files, err := h.Registry.ListPatientFiles(c.Request.Context(), p, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files, "count": len(files)})
}

func (h *Handler) DeletePatientFile(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := objectID(c, "id")
	if !ok {
		return
	}
	fileID, ok := objectID(c, "fileId")
	if !ok {
		return
	}
	if err := h.Registry.DeletePatientFile(c.Request.Context(), p, id, fileID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "File deleted"})
}
