package authcore

import "context"

type contextKey string

const clientIPKey contextKey = "client_ip"

// WithClientIP annotates ctx with the caller's IP for audit events
// emitted further down the call chain.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIP extracts the IP stored by [WithClientIP], or "".
func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}
