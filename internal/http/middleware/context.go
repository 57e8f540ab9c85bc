package middlewarex

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const ctxTenantID ctxKey = "tenant_id"

func WithTenantID(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxTenantID, tenantID)
}

func TenantID(ctx context.Context) (uuid.UUID, bool) {
	v, ok := ctx.Value(ctxTenantID).(uuid.UUID)
	return v, ok
}
