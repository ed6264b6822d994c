package checkout

import (
	"log/slog"
	"net/http"

	"github.com/luikyv/franchise-checkout/internal/api"
	"github.com/luikyv/franchise-checkout/internal/jwtutil"
	"github.com/luikyv/franchise-checkout/swaggers"
)

type Server struct {
	service     Service
	jwtSecret   string
	middlewares []func(http.Handler) http.Handler
}

// NewServer builds the payment API. The middlewares wrap the payment route only, after
// request validation.
func NewServer(service Service, jwtSecret string, middlewares ...func(http.Handler) http.Handler) Server {
	return Server{
		service:     service,
		jwtSecret:   jwtSecret,
		middlewares: middlewares,
	}
}

func (s Server) RegisterRoutes(mux *http.ServeMux) {
	var handler http.Handler = http.HandlerFunc(s.processPayment)
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		handler = s.middlewares[i](handler)
	}
	handler = api.SwaggerMiddleware(swaggers.GetCheckoutSwagger)(handler)

	mux.Handle("POST /process-subscription-payment", handler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
	})
}

func (s Server) processPayment(w http.ResponseWriter, r *http.Request) {
	req, err := DecodeRequest(r.Body)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}

	// The identity is only recorded for audit, a bad token never blocks the payment.
	identity, err := jwtutil.IdentityFromRequest(r, s.jwtSecret)
	if err != nil && !jwtutil.IsMissing(err) {
		slog.WarnContext(r.Context(), "could not decode the bearer token, continuing without identity", "error", err)
	}

	resp, err := s.service.Process(r.Context(), req, identity)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteJSON(w, resp, http.StatusOK)
}
