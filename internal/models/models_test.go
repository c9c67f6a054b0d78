package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newPatient(doctor *primitive.ObjectID, status PatientStatus) Patient {
	return Patient{ID: primitive.NewObjectID(), AssignedDoctor: doctor, Status: status}
}

func TestPatientPredicatesOnReturnedValues(t *testing.T) {
	doc := primitive.NewObjectID()

	assert.True(t, newPatient(&doc, PatientStatusActive).AssignedTo(doc))
	assert.False(t, newPatient(&doc, PatientStatusActive).AssignedTo(primitive.NewObjectID()))
	assert.False(t, newPatient(nil, PatientStatusActive).AssignedTo(doc))

	assert.True(t, newPatient(nil, PatientStatusCaseClosed).Closed())
	assert.False(t, newPatient(nil, PatientStatusActive).Closed())
}

func TestHasConsultingDoctor(t *testing.T) {
	c := primitive.NewObjectID()
	senior := func() User {
		return User{Role: RoleSeniorDoctor, AssignedConsultingDoctors: []primitive.ObjectID{c}}
	}
	assert.True(t, senior().HasConsultingDoctor(c))
	assert.False(t, senior().HasConsultingDoctor(primitive.NewObjectID()))
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" senior_doctor ")
	assert.NoError(t, err)
	assert.Equal(t, RoleSeniorDoctor, r)

	for _, bad := range []string{"", "jr-doctor", "Admin", "nurse"} {
		_, err := ParseRole(bad)
		assert.Error(t, err, bad)
	}
}
