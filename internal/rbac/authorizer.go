// Package rbac decides what a principal may do and what it may see.
//
// Every switch over models.Role ends in a deny (or empty) default, so a role
// that is unknown here fails closed.
package rbac

import (
	"github.com/sirupsen/logrus"

	"github.com/harentsoaR/clinic-rbac/internal/apperrors"
	"github.com/harentsoaR/clinic-rbac/internal/logger"
	"github.com/harentsoaR/clinic-rbac/internal/metrics"
	"github.com/harentsoaR/clinic-rbac/internal/models"
)

type Action string

const (
	ActionRegisterUser             Action = "registerUser"
	ActionAssignConsultingDoctor   Action = "assignConsultingDoctorToSenior"
	ActionUnassignConsultingDoctor Action = "unassignConsultingDoctorFromSenior"
	ActionAssignPatientDoctor      Action = "assignDoctorToPatient"
	ActionUnassignPatientDoctor    Action = "unassignDoctorFromPatient"
	ActionEditUser                 Action = "editUser"
	ActionEditRoleOrActiveFlag     Action = "editOtherUsersRoleOrActiveFlag"
	ActionResetPassword            Action = "resetPassword"
	ActionCreatePatient            Action = "createPatient"
	ActionUpdatePatient            Action = "updatePatient"
	ActionClosePatientCase         Action = "closePatientCase"
	ActionUploadPatientFile        Action = "uploadPatientFile"
	ActionDeletePatientFile        Action = "deletePatientFile"
)

// Target carries the records an action applies to. Only the field relevant
// to the action needs to be set.
type Target struct {
	User    *models.User
	Patient *models.Patient
	File    *models.PatientFile
}

type Authorizer struct {
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewAuthorizer(log *logger.Logger, m *metrics.Metrics) *Authorizer {
	return &Authorizer{log: log, metrics: m}
}

// Authorize returns nil when the action is allowed, otherwise a
// *apperrors.DenyError (errors.Is ErrForbidden).
func (a *Authorizer) Authorize(p models.Principal, action Action, target Target) error {
	allowed, reason := decide(p, action, target)
	a.metrics.Decision(string(action), allowed)
	if allowed {
		return nil
	}

	fields := logrus.Fields{"action": string(action), "role": string(p.Role)}
	if target.User != nil {
		fields["target_user"] = target.User.ID.Hex()
	}
	if target.Patient != nil {
		fields["target_patient"] = target.Patient.ID.Hex()
	}
	if target.File != nil {
		fields["target_file"] = target.File.ID.Hex()
	}
	a.log.Security("action_denied", p.UserID.Hex(), reason, fields)
	return apperrors.Deny(string(action), reason)
}

func decide(p models.Principal, action Action, t Target) (bool, string) {
	if !p.Role.Valid() {
		return false, apperrors.ReasonUnknownRole
	}

	switch action {
	case ActionRegisterUser,
		ActionAssignConsultingDoctor,
		ActionUnassignConsultingDoctor,
		ActionEditRoleOrActiveFlag:
		return adminOnly(p)

	case ActionAssignPatientDoctor, ActionUnassignPatientDoctor, ActionCreatePatient:
		switch p.Role {
		case models.RoleAdmin, models.RoleFrontDeskCoordinator:
			return true, ""
		default:
			return false, apperrors.ReasonRoleNotPermitted
		}

	case ActionEditUser:
		if t.User == nil {
			return false, apperrors.ReasonMissingTarget
		}
		return canEditUser(p, *t.User)

	case ActionResetPassword:
		if t.User == nil {
			return false, apperrors.ReasonMissingTarget
		}
		if p.Is(t.User.ID) || p.Role == models.RoleAdmin {
			return true, ""
		}
		return false, apperrors.ReasonPrivilegedField

	case ActionUpdatePatient, ActionClosePatientCase, ActionUploadPatientFile:
		if t.Patient == nil {
			return false, apperrors.ReasonMissingTarget
		}
		return hasPatientWriteAccess(p, *t.Patient)

	case ActionDeletePatientFile:
		if t.File == nil {
			return false, apperrors.ReasonMissingTarget
		}
		if p.Role == models.RoleAdmin || t.File.UploadedBy == p.UserID {
			return true, ""
		}
		return false, apperrors.ReasonNotUploader
	}

	return false, apperrors.ReasonUnknownAction
}

func adminOnly(p models.Principal) (bool, string) {
	if p.Role == models.RoleAdmin {
		return true, ""
	}
	return false, apperrors.ReasonAdminOnly
}

// canEditUser covers profile fields only. Role and active flag changes are
// checked separately with ActionEditRoleOrActiveFlag.
func canEditUser(p models.Principal, target models.User) (bool, string) {
	if p.Is(target.ID) {
		return true, ""
	}
	switch p.Role {
	case models.RoleAdmin:
		return true, ""
	case models.RoleSeniorDoctor:
		if p.User.HasConsultingDoctor(target.ID) {
			return true, ""
		}
		return false, apperrors.ReasonNotSupervisor
	case models.RoleConsultingDoctor, models.RoleFrontDeskCoordinator, models.RoleJrDoctor:
		return false, apperrors.ReasonRoleNotPermitted
	}
	return false, apperrors.ReasonUnknownRole
}

func hasPatientWriteAccess(p models.Principal, patient models.Patient) (bool, string) {
	switch p.Role {
	case models.RoleAdmin, models.RoleFrontDeskCoordinator:
		return true, ""
	case models.RoleSeniorDoctor, models.RoleConsultingDoctor:
		if patient.AssignedTo(p.UserID) {
			return true, ""
		}
		return false, apperrors.ReasonNotAssignedDoctor
	case models.RoleJrDoctor:
		return false, apperrors.ReasonRoleNotPermitted
	}
	return false, apperrors.ReasonUnknownRole
}
