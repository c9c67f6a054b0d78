package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harentsoaR/clinic-rbac/internal/apperrors"
	"github.com/harentsoaR/clinic-rbac/internal/models"
	"github.com/harentsoaR/clinic-rbac/internal/store"
	"github.com/harentsoaR/clinic-rbac/internal/utils"
)

// TokenValidator resolves a raw token into a principal. The user record is
// re-read on every call so deactivation and role changes take effect
// immediately, before the token expires.
type TokenValidator struct {
	store  store.Store
	signer *utils.TokenSigner
}

func NewTokenValidator(s store.Store, signer *utils.TokenSigner) *TokenValidator {
	return &TokenValidator{store: s, signer: signer}
}

func (v *TokenValidator) Authenticate(ctx context.Context, raw string) (models.Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.Principal{}, fmt.Errorf("%w: missing token", apperrors.ErrUnauthenticated)
	}

	claims, err := v.signer.ValidateJWT(raw)
	if err != nil {
		return models.Principal{}, fmt.Errorf("%w: %v", apperrors.ErrUnauthenticated, err)
	}

	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return models.Principal{}, fmt.Errorf("%w: malformed subject", apperrors.ErrUnauthenticated)
	}

	user, err := v.store.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return models.Principal{}, fmt.Errorf("%w: user no longer exists", apperrors.ErrUnauthenticated)
		}
		return models.Principal{}, fmt.Errorf("resolve principal: %w", err)
	}
	if !user.IsActive {
		return models.Principal{}, fmt.Errorf("%w: user is inactive", apperrors.ErrUnauthenticated)
	}
	if !user.Role.Valid() || string(user.Role) != claims.Role {
		return models.Principal{}, fmt.Errorf("%w: role changed since token was issued", apperrors.ErrUnauthenticated)
	}

	p := models.Principal{
		UserID: user.ID,
		Role:   user.Role,
		User:   user,
	}
	if claims.IssuedAt != nil {
		p.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}
