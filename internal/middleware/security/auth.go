package security

import (
	"crypto/subtle"
	"net/http"

	"incomes/internal/log"
)

// BasicAuth guards handlers with a single user/password pair. It is a
// placeholder for deployments behind a trusted network.
type BasicAuth struct {
	user     string
	password string
	realm    string
}

func NewBasicAuth(user, password string) *BasicAuth {
	return &BasicAuth{user: user, password: password, realm: "incomes"}
}

// Check reports whether r carries the configured credentials.
func (a *BasicAuth) Check(r *http.Request) bool {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(a.user)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(a.password)) == 1
	return userOK && passOK
}

// Middleware rejects requests without valid credentials. Paths in skip
// (health checks) are always served.
func (a *BasicAuth) Middleware(skip ...string) func(http.Handler) http.Handler {
	open := make(map[string]bool, len(skip))
	for _, p := range skip {
		open[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if open[r.URL.Path] || a.Check(r) {
				next.ServeHTTP(w, r)
				return
			}
			log.FromContext(r.Context()).WithComponent(log.ComponentSecurity).WarnContext(r.Context(), "Unauthorized request",
				log.FieldMethod, r.Method, log.FieldPath, r.URL.Path)
			w.Header().Set("WWW-Authenticate", `Basic realm="`+a.realm+`", charset="UTF-8"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		})
	}
}
