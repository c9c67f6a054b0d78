package store

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harentsoaR/clinic-rbac/internal/apperrors"
	"github.com/harentsoaR/clinic-rbac/internal/models"
)

// MemoryStore keeps everything in process. Writes are serialized by writeMu;
// a transaction works on a private copy of the data and publishes it with a
// single pointer swap, so readers never observe a partial transaction.
type MemoryStore struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	data    *memData
}

type memData struct {
	users    map[primitive.ObjectID]models.User
	patients map[primitive.ObjectID]models.Patient
	files    map[primitive.ObjectID]models.PatientFile
}

type memTxKey struct{}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: &memData{
		users:    make(map[primitive.ObjectID]models.User),
		patients: make(map[primitive.ObjectID]models.Patient),
		files:    make(map[primitive.ObjectID]models.PatientFile),
	}}
}

func (d *memData) clone() *memData {
	c := &memData{
		users:    make(map[primitive.ObjectID]models.User, len(d.users)),
		patients: make(map[primitive.ObjectID]models.Patient, len(d.patients)),
		files:    make(map[primitive.ObjectID]models.PatientFile, len(d.files)),
	}
	for k, v := range d.users {
		c.users[k] = v.Clone()
	}
	for k, v := range d.patients {
		c.patients[k] = v.Clone()
	}
	for k, v := range d.files {
		c.files[k] = v
	}
	return c
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(memTxKey{}).(*memData); ok {
		return fn(ctx)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	staged := s.data.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, memTxKey{}, staged)); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = staged
	s.mu.Unlock()
	return nil
}

// read runs fn against the transaction copy when ctx carries one, otherwise
// against the committed data under a read lock.
func (s *MemoryStore) read(ctx context.Context, fn func(d *memData)) {
	if staged, ok := ctx.Value(memTxKey{}).(*memData); ok {
		fn(staged)
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.data)
}

// write applies fn inside the current transaction, or as a one-record
// transaction of its own.
func (s *MemoryStore) write(ctx context.Context, fn func(d *memData) error) error {
	if staged, ok := ctx.Value(memTxKey{}).(*memData); ok {
		return fn(staged)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func (s *MemoryStore) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	email = models.NormalizeEmail(email)
	var (
		out   models.User
		found bool
	)
	s.read(ctx, func(d *memData) {
		for _, u := range d.users {
			if u.Email == email {
				out, found = u.Clone(), true
				return
			}
		}
	})
	if !found {
		return models.User{}, apperrors.NotFound("user")
	}
	return out, nil
}

func (s *MemoryStore) FindUserByID(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	var (
		out   models.User
		found bool
	)
	s.read(ctx, func(d *memData) {
		var u models.User
		if u, found = d.users[id]; found {
			out = u.Clone()
		}
	})
	if !found {
		return models.User{}, apperrors.NotFound("user")
	}
	return out, nil
}

func (s *MemoryStore) FindUsersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	var out []models.User
	s.read(ctx, func(d *memData) {
		seen := make(map[primitive.ObjectID]bool, len(ids))
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			if u, ok := d.users[id]; ok {
				out = append(out, u.Clone())
			}
		}
	})
	sortUsers(out)
	return out, nil
}

func (s *MemoryStore) ListUsers(ctx context.Context) ([]models.User, error) {
	var out []models.User
	s.read(ctx, func(d *memData) {
		out = make([]models.User, 0, len(d.users))
		for _, u := range d.users {
			out = append(out, u.Clone())
		}
	})
	sortUsers(out)
	return out, nil
}

func (s *MemoryStore) SaveUser(ctx context.Context, user models.User) error {
	if user.ID.IsZero() {
		return apperrors.InvalidInput("user id is required")
	}
	user.Email = models.NormalizeEmail(user.Email)
	return s.write(ctx, func(d *memData) error {
		for id, u := range d.users {
			if id != user.ID && u.Email == user.Email {
				return apperrors.Conflict("an account with this email already exists")
			}
		}
		d.users[user.ID] = user.Clone()
		return nil
	})
}

func (s *MemoryStore) FindPatientByID(ctx context.Context, id primitive.ObjectID) (models.Patient, error) {
	var (
		out   models.Patient
		found bool
	)
	s.read(ctx, func(d *memData) {
		var p models.Patient
		if p, found = d.patients[id]; found {
			out = p.Clone()
		}
	})
	if !found {
		return models.Patient{}, apperrors.NotFound("patient")
	}
	return out, nil
}

func (s *MemoryStore) ListPatients(ctx context.Context) ([]models.Patient, error) {
	var out []models.Patient
	s.read(ctx, func(d *memData) {
		out = make([]models.Patient, 0, len(d.patients))
		for _, p := range d.patients {
			out = append(out, p.Clone())
		}
	})
	sortPatients(out)
	return out, nil
}

func (s *MemoryStore) ListPatientsByDoctors(ctx context.Context, doctorIDs []primitive.ObjectID) ([]models.Patient, error) {
	want := make(map[primitive.ObjectID]bool, len(doctorIDs))
	for _, id := range doctorIDs {
		want[id] = true
	}
	var out []models.Patient
	s.read(ctx, func(d *memData) {
		for _, p := range d.patients {
			if p.AssignedDoctor != nil && want[*p.AssignedDoctor] {
				out = append(out, p.Clone())
			}
		}
	})
	sortPatients(out)
	return out, nil
}

func (s *MemoryStore) SavePatient(ctx context.Context, patient models.Patient) error {
	if patient.ID.IsZero() {
		return apperrors.InvalidInput("patient id is required")
	}
	return s.write(ctx, func(d *memData) error {
		for id, p := range d.patients {
			if id != patient.ID && p.PatientID == patient.PatientID {
				return apperrors.Conflict("patient id %s already exists", patient.PatientID)
			}
		}
		d.patients[patient.ID] = patient.Clone()
		return nil
	})
}

func (s *MemoryStore) FindFileByID(ctx context.Context, id primitive.ObjectID) (models.PatientFile, error) {
	var (
		out   models.PatientFile
		found bool
	)
	s.read(ctx, func(d *memData) {
		out, found = d.files[id]
	})
	if !found {
		return models.PatientFile{}, apperrors.NotFound("file")
	}
	return out, nil
}

func (s *MemoryStore) ListFilesByPatient(ctx context.Context, patientID primitive.ObjectID) ([]models.PatientFile, error) {
	out := []models.PatientFile{}
	s.read(ctx, func(d *memData) {
		for _, f := range d.files {
			if f.PatientID == patientID {
				out = append(out, f)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0 })
	return out, nil
}

func (s *MemoryStore) SaveFile(ctx context.Context, file models.PatientFile) error {
	if file.ID.IsZero() {
		return apperrors.InvalidInput("file id is required")
	}
	return s.write(ctx, func(d *memData) error {
		d.files[file.ID] = file
		return nil
	})
}

func (s *MemoryStore) DeleteFile(ctx context.Context, id primitive.ObjectID) error {
	return s.write(ctx, func(d *memData) error {
		if _, ok := d.files[id]; !ok {
			return apperrors.NotFound("file")
		}
		delete(d.files, id)
		return nil
	})
}

// ObjectIDs are time-ordered, so sorting by id sorts by creation.
func sortUsers(us []models.User) {
	sort.Slice(us, func(i, j int) bool { return bytes.Compare(us[i].ID[:], us[j].ID[:]) < 0 })
}

func sortPatients(ps []models.Patient) {
	sort.Slice(ps, func(i, j int) bool { return bytes.Compare(ps[i].ID[:], ps[j].ID[:]) < 0 })
}
