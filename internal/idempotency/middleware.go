package idempotency

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"

	"github.com/luikyv/franchise-checkout/internal/api"
)

// Store keeps the responses that can be replayed.
type Store interface {
	Response(ctx context.Context, id string) (*Record, error)
	Create(ctx context.Context, rec *Record) error
}

// Middleware replays the stored response of a request already processed with the same
// idempotency key. Requests without the header are processed normally.
func Middleware(store Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idempotencyID := r.Header.Get(api.HeaderIdempotencyKey)
			if idempotencyID == "" {
				next.ServeHTTP(w, r)
				return
			}

			bodyBytes, err := io.ReadAll(r.Body)
			if err != nil {
				api.WriteError(w, r, api.NewError(http.StatusInternalServerError, "Não foi possível ler o corpo da requisição"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			body := base64.RawStdEncoding.EncodeToString(bodyBytes)

			rec, err := store.Response(r.Context(), idempotencyID)
			if err == nil {
				if body != rec.Request {
					slog.DebugContext(r.Context(), "mismatched idempotent request payload", "id", rec.ID)
					api.WriteError(w, r, api.NewError(http.StatusInternalServerError, "O corpo da requisição não corresponde à requisição original com a mesma chave de idempotência"))
					return
				}

				slog.InfoContext(r.Context(), "return cached idempotency response")
				writeIdempotencyResp(w, r, rec)
				return
			}

			if !errors.Is(err, ErrNotFound) {
				api.WriteError(w, r, err)
				return
			}

			recorder := &responseRecorder{ResponseWriter: w, Body: &bytes.Buffer{}, StatusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)

			// Only successful responses are stored, a failed payment can be retried.
			if !slices.Contains([]int{http.StatusOK, http.StatusCreated}, recorder.StatusCode) {
				return
			}

			err = store.Create(r.Context(), &Record{
				ID:         idempotencyID,
				Request:    body,
				Response:   base64.RawStdEncoding.EncodeToString(recorder.Body.Bytes()),
				StatusCode: recorder.StatusCode,
			})
			if err != nil {
				slog.ErrorContext(r.Context(), "failed to store idempotent response", "error", err)
			}
		})
	}
}

func writeIdempotencyResp(w http.ResponseWriter, r *http.Request, rec *Record) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rec.StatusCode)

	if len(rec.Response) == 0 {
		slog.DebugContext(r.Context(), "idempotency record has no response body", "id", rec.ID)
		return
	}

	resp, err := base64.RawStdEncoding.DecodeString(rec.Response)
	if err != nil {
		slog.ErrorContext(r.Context(), "could not decode the cached response body", "error", err)
		return
	}
	if _, err := w.Write(resp); err != nil {
		slog.ErrorContext(r.Context(), "failed to write cached idempotent response body", "error", err)
	}
}

type responseRecorder struct {
	http.ResponseWriter
	Body       *bytes.Buffer
	StatusCode int
}

func (rr *responseRecorder) WriteHeader(statusCode int) {
	rr.StatusCode = statusCode
	rr.ResponseWriter.WriteHeader(statusCode)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	rr.Body.Write(b)
	return rr.ResponseWriter.Write(b)
}
