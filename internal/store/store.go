// Package store persists users, patients and patient files. It is the only
// shared mutable state of the service; the hierarchy edges live on the user and
// patient records and are changed through RunInTx.
package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harentsoaR/clinic-rbac/internal/models"
)

// Store is implemented by MongoStore and MemoryStore. Lookups that miss return
// an error wrapping apperrors.ErrNotFound; saves that collide on email or
// patientId return one wrapping apperrors.ErrConflict. Returned records are
// copies.
type Store interface {
	// RunInTx applies every write made by fn atomically. Readers outside the
	// transaction see either none or all of them. Nested calls join the outer
	// transaction.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	FindUserByEmail(ctx context.Context, email string) (models.User, error)
	FindUserByID(ctx context.Context, id primitive.ObjectID) (models.User, error)
	FindUsersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	SaveUser(ctx context.Context, user models.User) error

	FindPatientByID(ctx context.Context, id primitive.ObjectID) (models.Patient, error)
	ListPatients(ctx context.Context) ([]models.Patient, error)
	ListPatientsByDoctors(ctx context.Context, doctorIDs []primitive.ObjectID) ([]models.Patient, error)
	SavePatient(ctx context.Context, patient models.Patient) error

	FindFileByID(ctx context.Context, id primitive.ObjectID) (models.PatientFile, error)
	ListFilesByPatient(ctx context.Context, patientID primitive.ObjectID) ([]models.PatientFile, error)
	SaveFile(ctx context.Context, file models.PatientFile) error
	DeleteFile(ctx context.Context, id primitive.ObjectID) error
}
