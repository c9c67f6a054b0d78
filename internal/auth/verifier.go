// Package auth turns credentials into tokens and tokens back into principals.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harentsoaR/clinic-rbac/internal/apperrors"
	"github.com/harentsoaR/clinic-rbac/internal/logger"
	"github.com/harentsoaR/clinic-rbac/internal/metrics"
	"github.com/harentsoaR/clinic-rbac/internal/models"
	"github.com/harentsoaR/clinic-rbac/internal/store"
	"github.com/harentsoaR/clinic-rbac/internal/utils"
)

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      models.User
}

// CredentialVerifier checks email/password pairs and issues access tokens.
type CredentialVerifier struct {
	store   store.Store
	signer  *utils.TokenSigner
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	// dummyHash is compared against when there is no usable account, so every
	// rejected login pays one bcrypt comparison at the configured cost.
	dummyHash     string
	checkPassword func(password, hash string) bool
}

// NewCredentialVerifier hashes a throwaway password at bcryptCost up front;
// use the same cost as stored passwords.
func NewCredentialVerifier(s store.Store, signer *utils.TokenSigner, log *logger.Logger, m *metrics.Metrics, bcryptCost int) (*CredentialVerifier, error) {
	dummy, err := utils.HashPassword(uuid.NewString(), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &CredentialVerifier{
		store:         s,
		signer:        signer,
		log:           log,
		metrics:       m,
		now:           time.Now,
		dummyHash:     dummy,
		checkPassword: utils.CheckPasswordHash,
	}, nil
}

// Login returns ErrInvalidCredentials for an unknown email, an inactive
// account and a wrong password alike.
func (v *CredentialVerifier) Login(ctx context.Context, email, password string) (LoginResult, error) {
	user, err := v.store.FindUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return LoginResult{}, fmt.Errorf("login lookup: %w", err)
		}
		v.checkPassword(password, v.dummyHash)
		return LoginResult{}, v.reject("unknown_email", "")
	}
	if !user.IsActive {
		v.checkPassword(password, v.dummyHash)
		return LoginResult{}, v.reject("inactive_account", user.ID.Hex())
	}
	if !v.checkPassword(password, user.Password) {
		return LoginResult{}, v.reject("bad_password", user.ID.Hex())
	}

	token, claims, err := v.signer.GenerateJWT(user.ID.Hex(), string(user.Role))
	if err != nil {
		v.metrics.Login("error")
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}

	// Re-read inside the transaction so a concurrent edge change is not overwritten.
	now := v.now()
	err = v.store.RunInTx(ctx, func(ctx context.Context) error {
		current, err := v.store.FindUserByID(ctx, user.ID)
		if err != nil {
			return err
		}
		current.LastLogin = &now
		user = current
		return v.store.SaveUser(ctx, current)
	})
	if err != nil {
		v.metrics.Login("error")
		return LoginResult{}, fmt.Errorf("record last login: %w", err)
	}

	v.metrics.Login("success")
	v.log.WithComponent("auth").WithField("user_id", user.ID.Hex()).Info("Login succeeded")
	return LoginResult{Token: token, ExpiresAt: claims.ExpiresAt.Time, User: user}, nil
}

func (v *CredentialVerifier) reject(reason, userID string) error {
	v.metrics.Login("rejected")
	v.log.Security("login_rejected", userID, reason, nil)
	return apperrors.ErrInvalidCredentials
}
