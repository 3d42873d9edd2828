package auth

import "context"

type contextKey string

const AdminKey contextKey = "admin"

// IsAdmin reports whether the request carried a valid admin token.
func IsAdmin(ctx context.Context) bool {
	ok, _ := ctx.Value(AdminKey).(bool)
	return ok
}
