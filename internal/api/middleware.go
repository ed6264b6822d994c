package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/google/uuid"
	netmiddleware "github.com/oapi-codegen/nethttp-middleware"
	"github.com/rs/cors"
	"github.com/unrolled/secure"
)

// RequestIDMiddleware makes sure every request carries an id, reusing the caller's one
// when it is a valid uuid.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}

		w.Header().Set(HeaderRequestID, requestID)
		ctx := context.WithValue(r.Context(), CtxKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slog.InfoContext(r.Context(), "request received",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)

		start := time.Now()
		defer func() {
			slog.InfoContext(r.Context(), "request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Duration("duration", time.Since(start)),
			)
		}()
		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware allows the browser checkout page to call the API.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodPost, http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "apikey", "x-client-info", HeaderIdempotencyKey, HeaderRequestID},
		ExposedHeaders: []string{HeaderRequestID},
	})
	return c.Handler
}

func SecureMiddleware(isDevelopment bool) func(http.Handler) http.Handler {
	s := secure.New(secure.Options{
		ContentTypeNosniff: true,
		FrameDeny:          true,
		ReferrerPolicy:     "no-referrer",
		STSSeconds:         31536000,
		IsDevelopment:      isDevelopment,
	})
	return s.Handler
}

// SwaggerMiddleware validates requests against the OpenAPI document. Validation
// failures use the uniform failure body.
func SwaggerMiddleware(getSwagger func() (*openapi3.T, error)) func(http.Handler) http.Handler {
	spec, err := getSwagger()
	if err != nil {
		panic(err)
	}
	return netmiddleware.OapiRequestValidatorWithOptions(spec, &netmiddleware.Options{
		DoNotValidateServers: true,
		Options: openapi3filter.Options{
			AuthenticationFunc: func(ctx context.Context, ai *openapi3filter.AuthenticationInput) error {
				return nil
			},
		},
		ErrorHandlerWithOpts: func(ctx context.Context, err error, w http.ResponseWriter, r *http.Request, opts netmiddleware.ErrorHandlerOpts) {
			WriteError(w, r, NewError(http.StatusInternalServerError, "Requisição inválida: "+err.Error()))
		},
	})
}
