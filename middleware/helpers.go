package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/Dosada05/tournament-groups/models"
	"github.com/golang-jwt/jwt/v4"
)

const (
	jwtClaimUserID = "user_id"
	jwtClaimRole   = "role"
)

var ErrNoPrincipal = errors.New("user claims not found in context or invalid type")

// WithPrincipal is used by tests and internal callers that already trust the identity.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, userContextKey, jwt.MapClaims{
		jwtClaimUserID: p.ID,
		jwtClaimRole:   string(p.Role),
	})
}

func GetPrincipalFromContext(ctx context.Context) (models.Principal, error) {
	claims, ok := ctx.Value(userContextKey).(jwt.MapClaims)
	if !ok {
		return models.Principal{}, ErrNoPrincipal
	}
	return principalFromClaims(claims)
}

func principalFromClaims(claims jwt.MapClaims) (models.Principal, error) {
	id, err := userIDFromClaims(claims)
	if err != nil {
		return models.Principal{}, err
	}

	roleClaim, ok := claims[jwtClaimRole]
	if !ok {
		return models.Principal{}, fmt.Errorf("missing '%s' claim in token", jwtClaimRole)
	}
	roleStr, ok := roleClaim.(string)
	if !ok {
		return models.Principal{}, fmt.Errorf("invalid type for '%s' claim: expected string, got %T", jwtClaimRole, roleClaim)
	}
	role := models.UserRole(roleStr)
	switch role {
	case models.RoleAdmin, models.RoleUser:
	default:
		return models.Principal{}, fmt.Errorf("invalid role value in claim: %q", roleStr)
	}

	return models.Principal{ID: id, Role: role}, nil
}

// userIDFromClaims accepts string ids and integral numeric ids.
func userIDFromClaims(claims jwt.MapClaims) (string, error) {
	userIDClaim, ok := claims[jwtClaimUserID]
	if !ok {
		return "", fmt.Errorf("missing '%s' claim in token", jwtClaimUserID)
	}

	switch v := userIDClaim.(type) {
	case string:
		if v == "" {
			return "", fmt.Errorf("empty '%s' claim", jwtClaimUserID)
		}
		return v, nil
	case float64:
		if v != float64(int64(v)) || v <= 0 {
			return "", fmt.Errorf("invalid user ID value in '%s' claim: %v", jwtClaimUserID, v)
		}
		return strconv.FormatInt(int64(v), 10), nil
	default:
		return "", fmt.Errorf("invalid type for '%s' claim: expected string or number, got %T", jwtClaimUserID, userIDClaim)
	}
}
