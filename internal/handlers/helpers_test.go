package handlers

import (
	"net/http"

	"github.com/piiderlab/api/internal/platform/auth"
)

func withTestIdentity(r *http.Request, uid, email string, roles ...string) *http.Request {
	identity := &auth.Identity{UID: uid, Email: email, Roles: roles}
	return r.WithContext(auth.WithIdentity(r.Context(), identity))
}
