package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxOrganizationID
	ctxRole
)

var (
	errNoUserID         = errors.New("user_id not in context")
	errNoOrganizationID = errors.New("organization_id not in context")
	errNoRole           = errors.New("role not in context")
)

func WithIdentity(ctx context.Context, userID, organizationID, role string) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxOrganizationID, organizationID)
	ctx = context.WithValue(ctx, ctxRole, role)
	return ctx
}

func UserID(ctx context.Context) (string, error) {
	return stringValue(ctx, ctxUserID, errNoUserID)
}

func OrganizationID(ctx context.Context) (string, error) {
	return stringValue(ctx, ctxOrganizationID, errNoOrganizationID)
}

func Role(ctx context.Context) (string, error) {
	return stringValue(ctx, ctxRole, errNoRole)
}

func stringValue(ctx context.Context, k ctxKey, missing error) (string, error) {
	if s, ok := ctx.Value(k).(string); ok && s != "" {
		return s, nil
	}
	return "", missing
}
