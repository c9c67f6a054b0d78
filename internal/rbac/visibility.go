package rbac

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harentsoaR/clinic-rbac/internal/models"
	"github.com/harentsoaR/clinic-rbac/internal/store"
)

// Resolver computes visibility sets. It never writes and keeps no state
// between calls; sets are computed per request.
type Resolver struct {
	store store.Store
}

func NewResolver(s store.Store) *Resolver {
	return &Resolver{store: s}
}

// VisibleUsers returns the users p may read, self first.
func (r *Resolver) VisibleUsers(ctx context.Context, p models.Principal) ([]models.User, error) {
	switch p.Role {
	case models.RoleAdmin:
		users, err := r.store.ListUsers(ctx)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		return selfFirst(p.UserID, users), nil

	case models.RoleSeniorDoctor:
		consulting, err := r.store.FindUsersByIDs(ctx, p.User.AssignedConsultingDoctors)
		if err != nil {
			return nil, fmt.Errorf("load consulting doctors: %w", err)
		}
		return append([]models.User{p.User.Clone()}, consulting...), nil

	case models.RoleConsultingDoctor, models.RoleFrontDeskCoordinator, models.RoleJrDoctor:
		return []models.User{p.User.Clone()}, nil
	}
	return []models.User{}, nil
}

// VisiblePatients returns the patients p may read.
func (r *Resolver) VisiblePatients(ctx context.Context, p models.Principal) ([]models.Patient, error) {
	var (
		patients []models.Patient
		err      error
	)
	switch p.Role {
	case models.RoleAdmin, models.RoleFrontDeskCoordinator:
		patients, err = r.store.ListPatients(ctx)
	case models.RoleSeniorDoctor:
		patients, err = r.store.ListPatientsByDoctors(ctx, seniorScope(p))
	case models.RoleConsultingDoctor:
		patients, err = r.store.ListPatientsByDoctors(ctx, []primitive.ObjectID{p.UserID})
	default:
		return []models.Patient{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	if patients == nil {
		patients = make([]models.Patient, 0)
	}
	return patients, nil
}

// CanSeeUser applies the VisibleUsers rules to a single record.
func (r *Resolver) CanSeeUser(p models.Principal, target models.User) bool {
	if p.Is(target.ID) {
		return p.Role.Valid()
	}
	switch p.Role {
	case models.RoleAdmin:
		return true
	case models.RoleSeniorDoctor:
		return p.User.HasConsultingDoctor(target.ID)
	}
	return false
}

// CanSeePatient applies the VisiblePatients rules to a single record.
func (r *Resolver) CanSeePatient(p models.Principal, patient models.Patient) bool {
	switch p.Role {
	case models.RoleAdmin, models.RoleFrontDeskCoordinator:
		return true
	case models.RoleSeniorDoctor:
		for _, id := range seniorScope(p) {
			if patient.AssignedTo(id) {
				return true
			}
		}
		return false
	case models.RoleConsultingDoctor:
		return patient.AssignedTo(p.UserID)
	}
	return false
}

func seniorScope(p models.Principal) []primitive.ObjectID {
	ids := make([]primitive.ObjectID, 0, len(p.User.AssignedConsultingDoctors)+1)
	ids = append(ids, p.UserID)
	return append(ids, p.User.AssignedConsultingDoctors...)
}

func selfFirst(self primitive.ObjectID, users []models.User) []models.User {
	for i, u := range users {
		if u.ID == self {
			if i > 0 {
				copy(users[1:i+1], users[:i])
				users[0] = u
			}
			break
		}
	}
	return users
}
