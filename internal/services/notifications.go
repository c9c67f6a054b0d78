package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/harentsoaR/clinic-rbac/internal/logger"
	"github.com/harentsoaR/clinic-rbac/internal/models"
)

const textbeltURL = "https://textbelt.com/text"

// Notifier is told about committed assignment changes. Implementations must
// not block the caller.
type Notifier interface {
	PatientAssigned(doctor models.User, patient models.Patient)
}

// NotificationService texts doctors through the Textbelt API.
type NotificationService struct {
	apiKey   string
	endpoint string
	client   *http.Client
	log      *logger.Logger
}

func NewNotificationService(apiKey string, log *logger.Logger) *NotificationService {
	return &NotificationService{
		apiKey:   apiKey,
		endpoint: textbeltURL,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
}

// PatientAssigned sends the SMS in a goroutine so it doesn't block the API response.
func (s *NotificationService) PatientAssigned(doctor models.User, patient models.Patient) {
	entry := s.log.WithComponent("notifications").WithField("doctor_id", doctor.ID.Hex())
	if s.apiKey == "" {
		entry.Debug("SMS not sent: no Textbelt key configured")
		return
	}
	if doctor.Phone == "" {
		entry.Debug("SMS not sent: doctor has no phone number")
		return
	}

	body := fmt.Sprintf("New patient assigned: %s (%s).", patient.FullName, patient.PatientID)
	go func() {
		if err := s.send(doctor.Phone, body); err != nil {
			entry.WithError(err).Warn("Failed to send assignment SMS")
			return
		}
		entry.Info("Assignment SMS sent")
	}()
}

func (s *NotificationService) send(phone, message string) error {
	postBody, err := json.Marshal(map[string]string{
		"phone":   phone,
		"message": message,
		"key":     s.apiKey,
	})
	if err != nil {
		return err
	}

	resp, err := s.client.Post(s.endpoint, "application/json", bytes.NewBuffer(postBody))
	if err != nil {
		return fmt.Errorf("textbelt request: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode textbelt response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("textbelt rejected message: %s", result.Error)
	}
	return nil
}
