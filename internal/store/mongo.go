package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/harentsoaR/clinic-rbac/internal/apperrors"
	"github.com/harentsoaR/clinic-rbac/internal/models"
)

const (
	usersCollection    = "users"
	patientsCollection = "patients"
	filesCollection    = "patient_files"
)

// MongoStore persists to MongoDB. Multi-record edge changes run inside a
// session transaction, which requires a replica set or sharded cluster.
type MongoStore struct {
	client   *mongo.Client
	users    *mongo.Collection
	patients *mongo.Collection
	files    *mongo.Collection
}

var _ Store = (*MongoStore)(nil)

func NewMongoStore(client *mongo.Client, db *mongo.Database) *MongoStore {
	return &MongoStore{
		client:   client,
		users:    db.Collection(usersCollection),
		patients: db.Collection(patientsCollection),
		files:    db.Collection(filesCollection),
	}
}

// EnsureIndexes creates the unique indexes the store relies on for conflict
// detection, plus lookup indexes for the hierarchy queries.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if _, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "assignedSeniorDoctor", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	if _, err := s.patients.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "patientId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "assignedDoctor", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("create patient indexes: %w", err)
	}
	if _, err := s.files.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "patientRef", Value: 1}},
	}); err != nil {
		return fmt.Errorf("create file indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func (s *MongoStore) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := s.users.FindOne(ctx, bson.M{"email": models.NormalizeEmail(email)}).Decode(&user)
	return user, notFound(err, "user")
}

func (s *MongoStore) FindUserByID(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	var user models.User
	err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	return user, notFound(err, "user")
}

func (s *MongoStore) FindUsersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return findAll[models.User](ctx, s.users, bson.M{"_id": bson.M{"$in": ids}})
}

func (s *MongoStore) ListUsers(ctx context.Context) ([]models.User, error) {
	return findAll[models.User](ctx, s.users, bson.M{})
}

func (s *MongoStore) SaveUser(ctx context.Context, user models.User) error {
	if user.ID.IsZero() {
		return apperrors.InvalidInput("user id is required")
	}
	user.Email = models.NormalizeEmail(user.Email)
	_, err := s.users.ReplaceOne(ctx, bson.M{"_id": user.ID}, user, options.Replace().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return apperrors.Conflict("an account with this email already exists")
	}
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *MongoStore) FindPatientByID(ctx context.Context, id primitive.ObjectID) (models.Patient, error) {
	var patient models.Patient
	err := s.patients.FindOne(ctx, bson.M{"_id": id}).Decode(&patient)
	return patient, notFound(err, "patient")
}

func (s *MongoStore) ListPatients(ctx context.Context) ([]models.Patient, error) {
	return findAll[models.Patient](ctx, s.patients, bson.M{})
}

func (s *MongoStore) ListPatientsByDoctors(ctx context.Context, doctorIDs []primitive.ObjectID) ([]models.Patient, error) {
	if len(doctorIDs) == 0 {
		return nil, nil
	}
	return findAll[models.Patient](ctx, s.patients, bson.M{"assignedDoctor": bson.M{"$in": doctorIDs}})
}

func (s *MongoStore) SavePatient(ctx context.Context, patient models.Patient) error {
	if patient.ID.IsZero() {
		return apperrors.InvalidInput("patient id is required")
	}
	_, err := s.patients.ReplaceOne(ctx, bson.M{"_id": patient.ID}, patient, options.Replace().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return apperrors.Conflict("patient id %s already exists", patient.PatientID)
	}
	if err != nil {
		return fmt.Errorf("save patient: %w", err)
	}
	return nil
}

func (s *MongoStore) FindFileByID(ctx context.Context, id primitive.ObjectID) (models.PatientFile, error) {
	var file models.PatientFile
	err := s.files.FindOne(ctx, bson.M{"_id": id}).Decode(&file)
	return file, notFound(err, "file")
}

func (s *MongoStore) ListFilesByPatient(ctx context.Context, patientID primitive.ObjectID) ([]models.PatientFile, error) {
	files, err := findAll[models.PatientFile](ctx, s.files, bson.M{"patientRef": patientID})
	if files == nil && err == nil {
		files = make([]models.PatientFile, 0)
	}
	return files, err
}

func (s *MongoStore) SaveFile(ctx context.Context, file models.PatientFile) error {
	if file.ID.IsZero() {
		return apperrors.InvalidInput("file id is required")
	}
	if _, err := s.files.ReplaceOne(ctx, bson.M{"_id": file.ID}, file, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("save file: %w", err)
	}
	return nil
}

func (s *MongoStore) DeleteFile(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.files.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if res.DeletedCount == 0 {
		return apperrors.NotFound("file")
	}
	return nil
}

// findAll returns every document matching filter, oldest first.
func findAll[T any](ctx context.Context, coll *mongo.Collection, filter bson.M) ([]T, error) {
	cursor, err := coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", coll.Name(), err)
	}
	defer cursor.Close(ctx)

	var out []T
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", coll.Name(), err)
	}
	return out, nil
}

func notFound(err error, what string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperrors.NotFound(what)
	}
	if err != nil {
		return fmt.Errorf("find %s: %w", what, err)
	}
	return nil
}
