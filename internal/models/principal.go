package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Principal is the identity reconstructed from a verified token. User is the
// snapshot of the stored record taken when the token was validated.
type Principal struct {
	UserID    primitive.ObjectID
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
	User      User
}

func (p Principal) Is(id primitive.ObjectID) bool {
	return p.UserID == id
}
