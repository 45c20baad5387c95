package router

import (
	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/dukapi/infra/auth"
	"github.com/mstgnz/dukapi/infra/middle"
	v1 "github.com/mstgnz/dukapi/router/v1"

	// Import for side-effect registration
	_ "github.com/mstgnz/dukapi/provider/mpesa"
)

// Routes mounts the gateway callback and the versioned API. The callback
// authenticates with its signed URL and, when callbackIPs is set, the
// caller's address.
func Routes(r chi.Router, h v1.Handlers, jwtService *auth.JWTService, callbackIPs []string) {
	r.With(middle.IPAllowlist(callbackIPs)).Post("/callback/mpesa", h.Payments.HandleCallback)

	r.Route("/v1", func(r chi.Router) {
		v1.Routes(r, h, jwtService)
	})
}
