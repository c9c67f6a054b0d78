package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harentsoaR/clinic-rbac/internal/apperrors"
	"github.com/harentsoaR/clinic-rbac/internal/logger"
	"github.com/harentsoaR/clinic-rbac/internal/metrics"
	"github.com/harentsoaR/clinic-rbac/internal/models"
	"github.com/harentsoaR/clinic-rbac/internal/store"
)

// AssignmentManager is the only writer of hierarchy edges: the
// senior/consulting pairing on user records and the assignedDoctor pointer on
// patients. Each operation runs in one store transaction, so a failed check
// leaves both ends of an edge untouched. It does not authorize; callers go
// through the Registry.
type AssignmentManager struct {
	store    store.Store
	log      *logger.Logger
	metrics  *metrics.Metrics
	notifier Notifier
	now      func() time.Time
}

func NewAssignmentManager(s store.Store, log *logger.Logger, m *metrics.Metrics, n Notifier) *AssignmentManager {
	return &AssignmentManager{store: s, log: log, metrics: m, notifier: n, now: time.Now}
}

// AssignConsultingDoctor moves consultingID under seniorID. A consulting
// doctor has one senior at a time; any previous senior loses them.
func (m *AssignmentManager) AssignConsultingDoctor(ctx context.Context, actor, seniorID, consultingID primitive.ObjectID) (models.User, error) {
	var (
		consulting models.User
		prior      *primitive.ObjectID
	)
	err := m.store.RunInTx(ctx, func(ctx context.Context) error {
		senior, err := m.store.FindUserByID(ctx, seniorID)
		if err != nil {
			return err
		}
		consulting, err = m.store.FindUserByID(ctx, consultingID)
		if err != nil {
			return err
		}
		if senior.Role != models.RoleSeniorDoctor {
			return apperrors.RoleMismatch("user %s is not a senior doctor", seniorID.Hex())
		}
		if consulting.Role != models.RoleConsultingDoctor {
			return apperrors.RoleMismatch("user %s is not a consulting doctor", consultingID.Hex())
		}
		if !senior.IsActive || !consulting.IsActive {
			return apperrors.Conflict("cannot assign inactive doctors")
		}

		now := m.now()
		prior = consulting.AssignedSeniorDoctor
		if prior != nil && *prior != seniorID {
			if err := m.removeFromSenior(ctx, *prior, consultingID, now); err != nil {
				return err
			}
		}

		consulting.AssignedSeniorDoctor = &seniorID
		consulting.UpdatedAt = now
		if err := m.store.SaveUser(ctx, consulting); err != nil {
			return err
		}

		if !senior.HasConsultingDoctor(consultingID) {
			senior.AssignedConsultingDoctors = append(senior.AssignedConsultingDoctors, consultingID)
			senior.UpdatedAt = now
			if err := m.store.SaveUser(ctx, senior); err != nil {
				return err
			}
		}
		return nil
	})
	m.metrics.Assignment("assign_consulting_doctor", err)
	if err != nil {
		return models.User{}, err
	}

	fields := logrus.Fields{"senior_doctor": seniorID.Hex(), "consulting_doctor": consultingID.Hex()}
	if prior != nil && *prior != seniorID {
		fields["previous_senior_doctor"] = prior.Hex()
	}
	m.log.Audit(actor.Hex(), "assign_consulting_doctor", "user:"+consultingID.Hex(), fields)
	return consulting, nil
}

// UnassignConsultingDoctor clears both sides of the consulting doctor's
// senior edge. It succeeds without changes when there is no edge.
func (m *AssignmentManager) UnassignConsultingDoctor(ctx context.Context, actor, consultingID primitive.ObjectID) (models.User, error) {
	var (
		consulting models.User
		prior      *primitive.ObjectID
	)
	err := m.store.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		consulting, err = m.store.FindUserByID(ctx, consultingID)
		if err != nil {
			return err
		}
		if consulting.Role != models.RoleConsultingDoctor {
			return apperrors.RoleMismatch("user %s is not a consulting doctor", consultingID.Hex())
		}
		prior = consulting.AssignedSeniorDoctor
		if prior == nil {
			return nil
		}

		now := m.now()
		if err := m.removeFromSenior(ctx, *prior, consultingID, now); err != nil {
			return err
		}
		consulting.AssignedSeniorDoctor = nil
		consulting.UpdatedAt = now
		return m.store.SaveUser(ctx, consulting)
	})
	m.metrics.Assignment("unassign_consulting_doctor", err)
	if err != nil {
		return models.User{}, err
	}
	if prior != nil {
		m.log.Audit(actor.Hex(), "unassign_consulting_doctor", "user:"+consultingID.Hex(),
			logrus.Fields{"previous_senior_doctor": prior.Hex()})
	}
	return consulting, nil
}

// AssignDoctorToPatient points the patient at doctorID, replacing any
// previous doctor. The replaced doctor is recorded in the audit log.
func (m *AssignmentManager) AssignDoctorToPatient(ctx context.Context, actor, patientID, doctorID primitive.ObjectID) (models.Patient, error) {
	var (
		patient  models.Patient
		doctor   models.User
		previous *primitive.ObjectID
	)
	err := m.store.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		patient, err = m.store.FindPatientByID(ctx, patientID)
		if err != nil {
			return err
		}
		doctor, err = m.store.FindUserByID(ctx, doctorID)
		if err != nil {
			return err
		}
		if !doctor.Role.IsDoctor() {
			return apperrors.RoleMismatch("user %s is not a senior or consulting doctor", doctorID.Hex())
		}
		if !doctor.IsActive {
			return apperrors.Conflict("doctor %s is inactive", doctorID.Hex())
		}
		if patient.Closed() {
			return apperrors.Conflict("patient case %s is closed", patient.PatientID)
		}

		previous = patient.AssignedDoctor
		patient.AssignedDoctor = &doctorID
		patient.UpdatedAt = m.now()
		return m.store.SavePatient(ctx, patient)
	})
	m.metrics.Assignment("assign_patient_doctor", err)
	if err != nil {
		return models.Patient{}, err
	}

	fields := logrus.Fields{"doctor": doctorID.Hex()}
	if previous != nil && *previous != doctorID {
		fields["replaced_doctor"] = previous.Hex()
	}
	m.log.Audit(actor.Hex(), "assign_patient_doctor", "patient:"+patientID.Hex(), fields)

	if previous == nil || *previous != doctorID {
		m.notifier.PatientAssigned(doctor, patient)
	}
	return patient, nil
}

// UnassignDoctorFromPatient clears the patient's doctor. It succeeds without
// changes when none is assigned.
func (m *AssignmentManager) UnassignDoctorFromPatient(ctx context.Context, actor, patientID primitive.ObjectID) (models.Patient, error) {
	var (
		patient  models.Patient
		previous *primitive.ObjectID
	)
	err := m.store.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		patient, err = m.store.FindPatientByID(ctx, patientID)
		if err != nil {
			return err
		}
		previous = patient.AssignedDoctor
		if previous == nil {
			return nil
		}
		if patient.Closed() {
			return apperrors.Conflict("patient case %s is closed", patient.PatientID)
		}
		patient.AssignedDoctor = nil
		patient.UpdatedAt = m.now()
		return m.store.SavePatient(ctx, patient)
	})
	m.metrics.Assignment("unassign_patient_doctor", err)
	if err != nil {
		return models.Patient{}, err
	}
	if previous != nil {
		m.log.Audit(actor.Hex(), "unassign_patient_doctor", "patient:"+patientID.Hex(),
			logrus.Fields{"previous_doctor": previous.Hex()})
	}
	return patient, nil
}

// releaseEdges drops every edge that would no longer be valid once user holds
// newRole. It must run inside the caller's transaction; the caller saves user
// and logs the returned fields after commit.
func (m *AssignmentManager) releaseEdges(ctx context.Context, user *models.User, newRole models.Role) (logrus.Fields, error) {
	if user.Role == newRole {
		return nil, nil
	}
	now := m.now()
	fields := logrus.Fields{"old_role": string(user.Role), "new_role": string(newRole)}

	if user.Role == models.RoleConsultingDoctor && user.AssignedSeniorDoctor != nil {
		if err := m.removeFromSenior(ctx, *user.AssignedSeniorDoctor, user.ID, now); err != nil {
			return nil, err
		}
		fields["released_senior_doctor"] = user.AssignedSeniorDoctor.Hex()
		user.AssignedSeniorDoctor = nil
	}

	if user.Role == models.RoleSeniorDoctor && len(user.AssignedConsultingDoctors) > 0 {
		team, err := m.store.FindUsersByIDs(ctx, user.AssignedConsultingDoctors)
		if err != nil {
			return nil, err
		}
		for _, c := range team {
			if c.AssignedSeniorDoctor == nil || *c.AssignedSeniorDoctor != user.ID {
				continue
			}
			c.AssignedSeniorDoctor = nil
			c.UpdatedAt = now
			if err := m.store.SaveUser(ctx, c); err != nil {
				return nil, err
			}
		}
		fields["released_consulting_doctors"] = len(user.AssignedConsultingDoctors)
		user.AssignedConsultingDoctors = nil
	}

	if user.Role.IsDoctor() && !newRole.IsDoctor() {
		patients, err := m.store.ListPatientsByDoctors(ctx, []primitive.ObjectID{user.ID})
		if err != nil {
			return nil, err
		}
		for _, p := range patients {
			p.AssignedDoctor = nil
			p.UpdatedAt = now
			if err := m.store.SavePatient(ctx, p); err != nil {
				return nil, err
			}
		}
		fields["released_patients"] = len(patients)
	}

	return fields, nil
}

func (m *AssignmentManager) removeFromSenior(ctx context.Context, seniorID, consultingID primitive.ObjectID, now time.Time) error {
	senior, err := m.store.FindUserByID(ctx, seniorID)
	if err != nil {
		// A dangling back-reference is dropped rather than blocking the move.
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return err
	}
	kept := senior.AssignedConsultingDoctors[:0:0]
	for _, id := range senior.AssignedConsultingDoctors {
		if id != consultingID {
			kept = append(kept, id)
		}
	}
	senior.AssignedConsultingDoctors = kept
	senior.UpdatedAt = now
	return m.store.SaveUser(ctx, senior)
}
