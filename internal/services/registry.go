package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harentsoaR/clinic-rbac/internal/apperrors"
	"github.com/harentsoaR/clinic-rbac/internal/logger"
	"github.com/harentsoaR/clinic-rbac/internal/models"
	"github.com/harentsoaR/clinic-rbac/internal/rbac"
	"github.com/harentsoaR/clinic-rbac/internal/store"
	"github.com/harentsoaR/clinic-rbac/internal/utils"
)

const minPasswordLength = 8

type RegisterUserInput struct {
	FullName       string
	Email          string
	Password       string
	Role           string
	Phone          string
	Specialization string
}

// UpdateUserInput holds optional changes; nil means "leave as is".
type UpdateUserInput struct {
	FullName       *string
	Email          *string
	Phone          *string
	Specialization *string
	Password       *string
	Role           *string
	IsActive       *bool
}

type CreatePatientInput struct {
	PatientID string
	FullName  string
	Email     string
	Phone     string
	Notes     string
}

type UpdatePatientInput struct {
	FullName *string
	Email    *string
	Phone    *string
	Notes    *string
}

type AddFileInput struct {
	FileName    string
	ContentType string
	StorageKey  string
}

// Hierarchy is the caller's place in the doctor tree.
type Hierarchy struct {
	SeniorDoctor      *models.User  `json:"seniorDoctor,omitempty"`
	ConsultingDoctors []models.User `json:"consultingDoctors,omitempty"`
}

// Registry is the surface every read and write goes through. Writes are
// authorized before anything is changed; reads are filtered by visibility.
type Registry struct {
	store       store.Store
	authz       *rbac.Authorizer
	resolver    *rbac.Resolver
	assignments *AssignmentManager
	log         *logger.Logger
	bcryptCost  int
	now         func() time.Time
}

func NewRegistry(s store.Store, authz *rbac.Authorizer, resolver *rbac.Resolver, assignments *AssignmentManager, log *logger.Logger, bcryptCost int) *Registry {
	return &Registry{
		store:       s,
		authz:       authz,
		resolver:    resolver,
		assignments: assignments,
		log:         log,
		bcryptCost:  bcryptCost,
		now:         time.Now,
	}
}

// --- Users ---

// RegisterUser is admin only. The check runs before the payload is looked at.
func (r *Registry) RegisterUser(ctx context.Context, p models.Principal, in RegisterUserInput) (models.User, error) {
	if err := r.authz.Authorize(p, rbac.ActionRegisterUser, rbac.Target{}); err != nil {
		return models.User{}, err
	}

	role, err := models.ParseRole(in.Role)
	if err != nil {
		return models.User{}, apperrors.InvalidInput("%v", err)
	}
	user, err := r.newUser(in.FullName, in.Email, in.Password, role)
	if err != nil {
		return models.User{}, err
	}
	user.Phone = strings.TrimSpace(in.Phone)
	user.Specialization = strings.TrimSpace(in.Specialization)

	if err := r.store.SaveUser(ctx, user); err != nil {
		return models.User{}, err
	}
	r.log.Audit(p.UserID.Hex(), "register_user", "user:"+user.ID.Hex(), logrus.Fields{"role": string(role)})
	return user, nil
}

// EnsureAdmin creates the bootstrap admin when no user holds that email.
// It is called at startup, outside any request, and so skips authorization.
func (r *Registry) EnsureAdmin(ctx context.Context, fullName, email, password string) (bool, error) {
	_, err := r.store.FindUserByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return false, err
	}

	user, err := r.newUser(fullName, email, password, models.RoleAdmin)
	if err != nil {
		return false, err
	}
	if err := r.store.SaveUser(ctx, user); err != nil {
		return false, err
	}
	r.log.Audit("system", "bootstrap_admin", "user:"+user.ID.Hex(), nil)
	return true, nil
}

func (r *Registry) newUser(fullName, email, password string, role models.Role) (models.User, error) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return models.User{}, apperrors.InvalidInput("fullName is required")
	}
	email, err := validEmail(email)
	if err != nil {
		return models.User{}, err
	}
	if len(password) < minPasswordLength {
		return models.User{}, apperrors.InvalidInput("password must be at least %d characters", minPasswordLength)
	}
	hash, err := utils.HashPassword(password, r.bcryptCost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := r.now()
	return models.User{
		ID:        primitive.NewObjectID(),
		FullName:  fullName,
		Email:     email,
		Password:  hash,
		Role:      role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GetUser returns the user when p may see it. Invisible users are reported as
// not found.
func (r *Registry) GetUser(ctx context.Context, p models.Principal, id primitive.ObjectID) (models.User, error) {
	user, err := r.store.FindUserByID(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	if !r.resolver.CanSeeUser(p, user) {
		return models.User{}, apperrors.NotFound("user")
	}
	return user, nil
}

// ListUsers returns p's visible users. Inactive users other than p are left
// out unless includeInactive is set.
func (r *Registry) ListUsers(ctx context.Context, p models.Principal, includeInactive bool) ([]models.User, error) {
	users, err := r.resolver.VisibleUsers(ctx, p)
	if err != nil {
		return nil, err
	}
	if includeInactive {
		return users, nil
	}
	out := make([]models.User, 0, len(users))
	for _, u := range users {
		if u.IsActive || p.Is(u.ID) {
			out = append(out, u)
		}
	}
	return out, nil
}

// Me returns p's current record and its hierarchy neighbours.
func (r *Registry) Me(ctx context.Context, p models.Principal) (models.User, Hierarchy, error) {
	user, err := r.store.FindUserByID(ctx, p.UserID)
	if err != nil {
		return models.User{}, Hierarchy{}, err
	}

	var h Hierarchy
	switch user.Role {
	case models.RoleSeniorDoctor:
		team, err := r.store.FindUsersByIDs(ctx, user.AssignedConsultingDoctors)
		if err != nil {
			return models.User{}, Hierarchy{}, err
		}
		h.ConsultingDoctors = append(make([]models.User, 0, len(team)), team...)
	case models.RoleConsultingDoctor:
		if user.AssignedSeniorDoctor != nil {
			senior, err := r.store.FindUserByID(ctx, *user.AssignedSeniorDoctor)
			if err == nil {
				h.SeniorDoctor = &senior
			} else if !errors.Is(err, apperrors.ErrNotFound) {
				return models.User{}, Hierarchy{}, err
			}
		}
	}
	return user, h, nil
}

// UpdateUser applies profile changes allowed by editUser, and role or active
// flag changes allowed by editOtherUsersRoleOrActiveFlag. Edges that the new
// role can no longer hold are released in the same transaction.
func (r *Registry) UpdateUser(ctx context.Context, p models.Principal, id primitive.ObjectID, in UpdateUserInput) (models.User, error) {
	var (
		updated  models.User
		released logrus.Fields
	)
	err := r.store.RunInTx(ctx, func(ctx context.Context) error {
		target, err := r.store.FindUserByID(ctx, id)
		if err != nil {
			return err
		}
		t := rbac.Target{User: &target}
		if err := r.authz.Authorize(p, rbac.ActionEditUser, t); err != nil {
			return err
		}

		var newRole models.Role
		if in.Role != nil {
			if newRole, err = models.ParseRole(*in.Role); err != nil {
				return apperrors.InvalidInput("%v", err)
			}
		}
		roleChange := in.Role != nil && newRole != target.Role
		activeChange := in.IsActive != nil && *in.IsActive != target.IsActive
		if roleChange || activeChange {
			if err := r.authz.Authorize(p, rbac.ActionEditRoleOrActiveFlag, t); err != nil {
				return err
			}
		}
		if in.Password != nil {
			if err := r.authz.Authorize(p, rbac.ActionResetPassword, t); err != nil {
				return err
			}
		}

		if in.FullName != nil {
			name := strings.TrimSpace(*in.FullName)
			if name == "" {
				return apperrors.InvalidInput("fullName cannot be empty")
			}
			target.FullName = name
		}
		if in.Email != nil {
			email, err := validEmail(*in.Email)
			if err != nil {
				return err
			}
			target.Email = email
		}
		if in.Phone != nil {
			target.Phone = strings.TrimSpace(*in.Phone)
		}
		if in.Specialization != nil {
			target.Specialization = strings.TrimSpace(*in.Specialization)
		}
		if in.Password != nil {
			if len(*in.Password) < minPasswordLength {
				return apperrors.InvalidInput("password must be at least %d characters", minPasswordLength)
			}
			hash, err := utils.HashPassword(*in.Password, r.bcryptCost)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}
			target.Password = hash
		}
		if roleChange {
			if released, err = r.assignments.releaseEdges(ctx, &target, newRole); err != nil {
				return err
			}
			target.Role = newRole
		}
		if activeChange {
			target.IsActive = *in.IsActive
		}

		target.UpdatedAt = r.now()
		if err := r.store.SaveUser(ctx, target); err != nil {
			return err
		}
		updated = target
		return nil
	})
	if err != nil {
		return models.User{}, err
	}

	r.log.Audit(p.UserID.Hex(), "update_user", "user:"+id.Hex(), nil)
	if released != nil {
		r.log.Audit(p.UserID.Hex(), "release_edges", "user:"+id.Hex(), released)
	}
	return updated, nil
}

// AssignConsultingDoctor puts consultingID under seniorID (admin only).
func (r *Registry) AssignConsultingDoctor(ctx context.Context, p models.Principal, seniorID, consultingID primitive.ObjectID) (models.User, error) {
	if err := r.authz.Authorize(p, rbac.ActionAssignConsultingDoctor, rbac.Target{}); err != nil {
		return models.User{}, err
	}
	return r.assignments.AssignConsultingDoctor(ctx, p.UserID, seniorID, consultingID)
}

// UnassignConsultingDoctor detaches consultingID from its senior (admin only).
func (r *Registry) UnassignConsultingDoctor(ctx context.Context, p models.Principal, consultingID primitive.ObjectID) (models.User, error) {
	if err := r.authz.Authorize(p, rbac.ActionUnassignConsultingDoctor, rbac.Target{}); err != nil {
		return models.User{}, err
	}
	return r.assignments.UnassignConsultingDoctor(ctx, p.UserID, consultingID)
}

// --- Patients ---

func (r *Registry) CreatePatient(ctx context.Context, p models.Principal, in CreatePatientInput) (models.Patient, error) {
	if err := r.authz.Authorize(p, rbac.ActionCreatePatient, rbac.Target{}); err != nil {
		return models.Patient{}, err
	}

	name := strings.TrimSpace(in.FullName)
	if name == "" {
		return models.Patient{}, apperrors.InvalidInput("fullName is required")
	}
	patientID := strings.TrimSpace(in.PatientID)
	if patientID == "" {
		patientID = newPatientID()
	}
	email := strings.TrimSpace(in.Email)
	if email != "" {
		var err error
		if email, err = validEmail(email); err != nil {
			return models.Patient{}, err
		}
	}

	now := r.now()
	patient := models.Patient{
		ID:        primitive.NewObjectID(),
		PatientID: patientID,
		FullName:  name,
		Email:     email,
		Phone:     strings.TrimSpace(in.Phone),
		Notes:     in.Notes,
		Status:    models.PatientStatusActive,
		IsActive:  true,
		CreatedBy: p.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.SavePatient(ctx, patient); err != nil {
		return models.Patient{}, err
	}
	r.log.Audit(p.UserID.Hex(), "create_patient", "patient:"+patient.ID.Hex(), logrus.Fields{"patient_id": patientID})
	return patient, nil
}

// GetPatient returns the patient when p may see it. Invisible patients are
// reported as not found.
func (r *Registry) GetPatient(ctx context.Context, p models.Principal, id primitive.ObjectID) (models.Patient, error) {
	patient, err := r.store.FindPatientByID(ctx, id)
	if err != nil {
		return models.Patient{}, err
	}
	if !r.resolver.CanSeePatient(p, patient) {
		return models.Patient{}, apperrors.NotFound("patient")
	}
	return patient, nil
}

// ListPatients returns p's visible patients, optionally narrowed to one status.
func (r *Registry) ListPatients(ctx context.Context, p models.Principal, status string) ([]models.Patient, error) {
	var want models.PatientStatus
	switch models.PatientStatus(status) {
	case "":
	case models.PatientStatusActive, models.PatientStatusCaseClosed:
		want = models.PatientStatus(status)
	default:
		return nil, apperrors.InvalidInput("unknown status %q", status)
	}

	patients, err := r.resolver.VisiblePatients(ctx, p)
	if err != nil {
		return nil, err
	}
	if want == "" {
		return patients, nil
	}
	out := make([]models.Patient, 0, len(patients))
	for _, pt := range patients {
		if pt.Status == want {
			out = append(out, pt)
		}
	}
	return out, nil
}

func (r *Registry) UpdatePatient(ctx context.Context, p models.Principal, id primitive.ObjectID, in UpdatePatientInput) (models.Patient, error) {
	var updated models.Patient
	err := r.store.RunInTx(ctx, func(ctx context.Context) error {
		patient, err := r.store.FindPatientByID(ctx, id)
		if err != nil {
			return err
		}
		if err := r.authz.Authorize(p, rbac.ActionUpdatePatient, rbac.Target{Patient: &patient}); err != nil {
			return err
		}
		if patient.Closed() {
			return apperrors.Conflict("patient case %s is closed", patient.PatientID)
		}

		if in.FullName != nil {
			name := strings.TrimSpace(*in.FullName)
			if name == "" {
				return apperrors.InvalidInput("fullName cannot be empty")
			}
			patient.FullName = name
		}
		if in.Email != nil {
			email := strings.TrimSpace(*in.Email)
			if email != "" {
				if email, err = validEmail(email); err != nil {
					return err
				}
			}
			patient.Email = email
		}
		if in.Phone != nil {
			patient.Phone = strings.TrimSpace(*in.Phone)
		}
		if in.Notes != nil {
			patient.Notes = *in.Notes
		}

		patient.UpdatedAt = r.now()
		if err := r.store.SavePatient(ctx, patient); err != nil {
			return err
		}
		updated = patient
		return nil
	})
	if err != nil {
		return models.Patient{}, err
	}
	r.log.Audit(p.UserID.Hex(), "update_patient", "patient:"+id.Hex(), nil)
	return updated, nil
}

// AssignDoctorToPatient returns the patient as committed; under concurrent
// assignment the last commit wins and the returned doctor is authoritative.
func (r *Registry) AssignDoctorToPatient(ctx context.Context, p models.Principal, patientID, doctorID primitive.ObjectID) (models.Patient, error) {
	if err := r.authz.Authorize(p, rbac.ActionAssignPatientDoctor, rbac.Target{}); err != nil {
		return models.Patient{}, err
	}
	return r.assignments.AssignDoctorToPatient(ctx, p.UserID, patientID, doctorID)
}

func (r *Registry) UnassignDoctorFromPatient(ctx context.Context, p models.Principal, patientID primitive.ObjectID) (models.Patient, error) {
	if err := r.authz.Authorize(p, rbac.ActionUnassignPatientDoctor, rbac.Target{}); err != nil {
		return models.Patient{}, err
	}
	return r.assignments.UnassignDoctorFromPatient(ctx, p.UserID, patientID)
}

// ClosePatientCase moves the patient to case_closed and deactivates it.
// Closing a closed case succeeds and changes nothing. There is no reopen.
func (r *Registry) ClosePatientCase(ctx context.Context, p models.Principal, id primitive.ObjectID) (models.Patient, error) {
	var (
		patient models.Patient
		changed bool
	)
	err := r.store.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		patient, err = r.store.FindPatientByID(ctx, id)
		if err != nil {
			return err
		}
		if err := r.authz.Authorize(p, rbac.ActionClosePatientCase, rbac.Target{Patient: &patient}); err != nil {
			return err
		}
		if patient.Closed() {
			return nil
		}

		now := r.now()
		patient.Status = models.PatientStatusCaseClosed
		patient.IsActive = false
		patient.ClosedAt = &now
		patient.UpdatedAt = now
		changed = true
		return r.store.SavePatient(ctx, patient)
	})
	if err != nil {
		return models.Patient{}, err
	}
	if changed {
		r.log.Audit(p.UserID.Hex(), "close_patient_case", "patient:"+id.Hex(), nil)
	}
	return patient, nil
}

// --- Patient files ---

func (r *Registry) AddPatientFile(ctx context.Context, p models.Principal, patientID primitive.ObjectID, in AddFileInput) (models.PatientFile, error) {
	patient, err := r.store.FindPatientByID(ctx, patientID)
	if err != nil {
		return models.PatientFile{}, err
	}
	if err := r.authz.Authorize(p, rbac.ActionUploadPatientFile, rbac.Target{Patient: &patient}); err != nil {
		return models.PatientFile{}, err
	}
	if patient.Closed() {
		return models.PatientFile{}, apperrors.Conflict("patient case %s is closed", patient.PatientID)
	}
	name := strings.TrimSpace(in.FileName)
	key := strings.TrimSpace(in.StorageKey)
	if name == "" || key == "" {
		return models.PatientFile{}, apperrors.InvalidInput("fileName and storageKey are required")
	}

	file := models.PatientFile{
		ID:          primitive.NewObjectID(),
		PatientID:   patientID,
		FileName:    name,
		ContentType: strings.TrimSpace(in.ContentType),
		StorageKey:  key,
		UploadedBy:  p.UserID,
		UploadedAt:  r.now(),
	}
	if err := r.store.SaveFile(ctx, file); err != nil {
		return models.PatientFile{}, err
	}
	r.log.Audit(p.UserID.Hex(), "upload_patient_file", "file:"+file.ID.Hex(), logrus.Fields{"patient": patientID.Hex()})
	return file, nil
}

func (r *Registry) ListPatientFiles(ctx context.Context, p models.Principal, patientID primitive.ObjectID) ([]models.PatientFile, error) {
	if _, err := r.GetPatient(ctx, p, patientID); err != nil {
		return nil, err
	}
	return r.store.ListFilesByPatient(ctx, patientID)
}

// DeletePatientFile is allowed to the uploader and to admins, and only while
// the case is open.
func (r *Registry) DeletePatientFile(ctx context.Context, p models.Principal, patientID, fileID primitive.ObjectID) error {
	err := r.store.RunInTx(ctx, func(ctx context.Context) error {
		file, err := r.store.FindFileByID(ctx, fileID)
		if err != nil {
			return err
		}
		if file.PatientID != patientID {
			return apperrors.NotFound("file")
		}
		if err := r.authz.Authorize(p, rbac.ActionDeletePatientFile, rbac.Target{File: &file}); err != nil {
			return err
		}
		patient, err := r.store.FindPatientByID(ctx, patientID)
		if err != nil {
			return err
		}
		if patient.Closed() {
			return apperrors.Conflict("patient case %s is closed", patient.PatientID)
		}
		return r.store.DeleteFile(ctx, fileID)
	})
	if err != nil {
		return err
	}
	r.log.Audit(p.UserID.Hex(), "delete_patient_file", "file:"+fileID.Hex(), logrus.Fields{"patient": patientID.Hex()})
	return nil
}

func validEmail(email string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Address != strings.TrimSpace(email) {
		return "", apperrors.InvalidInput("invalid email address")
	}
	return models.NormalizeEmail(addr.Address), nil
}

func newPatientID() string {
	return "PT-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
