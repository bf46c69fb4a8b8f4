package authcore

import "context"

type contextKey uint8

const (
	contextKeyClientIP contextKey = iota
	contextKeyOrgID
)

// WithClientIP attaches the caller's network address for audit metadata.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, contextKeyClientIP, ip)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(contextKeyClientIP).(string)
	return ip
}

// WithOrgID attaches the requesting organization for audit metadata.
func WithOrgID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, contextKeyOrgID, orgID)
}

func orgIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	org, _ := ctx.Value(contextKeyOrgID).(string)
	return org
}
