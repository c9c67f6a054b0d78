package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PatientStatus string

const (
	PatientStatusActive     PatientStatus = "active"
	PatientStatusCaseClosed PatientStatus = "case_closed"
)

type Patient struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PatientID string             `bson:"patientId" json:"patientId"` // human-facing, unique
	FullName  string             `bson:"fullName" json:"fullName"`
	Email     string             `bson:"email,omitempty" json:"email,omitempty"`
	Phone     string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Notes     string             `bson:"notes,omitempty" json:"notes,omitempty"`

	AssignedDoctor *primitive.ObjectID `bson:"assignedDoctor,omitempty" json:"assignedDoctor"`
	Status         PatientStatus       `bson:"status" json:"status"`
	IsActive       bool                `bson:"isActive" json:"isActive"`

	CreatedBy primitive.ObjectID `bson:"createdBy" json:"createdBy"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
	ClosedAt  *time.Time         `bson:"closedAt,omitempty" json:"closedAt,omitempty"`
}

func (p Patient) Closed() bool {
	return p.Status == PatientStatusCaseClosed
}

// AssignedTo reports whether the patient currently points at doctorID.
func (p Patient) AssignedTo(doctorID primitive.ObjectID) bool {
	return p.AssignedDoctor != nil && *p.AssignedDoctor == doctorID
}

func (p Patient) Clone() Patient {
	if p.AssignedDoctor != nil {
		d := *p.AssignedDoctor
		p.AssignedDoctor = &d
	}
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		p.ClosedAt = &t
	}
	return p
}

// PatientFile is the metadata of an uploaded document. The bytes live in object storage.
type PatientFile struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	PatientID   primitive.ObjectID `bson:"patientRef" json:"patientRef"`
	FileName    string             `bson:"fileName" json:"fileName"`
	ContentType string             `bson:"contentType,omitempty" json:"contentType,omitempty"`
	StorageKey  string             `bson:"storageKey" json:"storageKey"`
	UploadedBy  primitive.ObjectID `bson:"uploadedBy" json:"uploadedBy"`
	UploadedAt  time.Time          `bson:"uploadedAt" json:"uploadedAt"`
}
