package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDMiddleware(t *testing.T) {
	var ctxID string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID, _ = r.Context().Value(CtxKeyRequestID).(string)
	}))

	t.Run("reuses valid id", func(t *testing.T) {
		id := uuid.NewString()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderRequestID, id)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, id, ctxID)
		assert.Equal(t, id, rec.Header().Get(HeaderRequestID))
	})

	t.Run("replaces invalid id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderRequestID, "not-a-uuid")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		_, err := uuid.Parse(ctxID)
		require.NoError(t, err)
		assert.Equal(t, ctxID, rec.Header().Get(HeaderRequestID))
	})
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "api error",
			err:        NewError(http.StatusBadRequest, "Requisição inválida"),
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Requisição inválida",
		},
		{
			name:       "plain error",
			err:        errors.New("Link de pagamento inválido ou expirado"),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Link de pagamento inválido ou expirado",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()

			WriteError(rec, httptest.NewRequest(http.MethodPost, "/", nil), tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.wantMsg, body.Error)
		})
	}
}

func TestWriteJSON_DoesNotEscapeHTML(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteJSON(rec, map[string]string{"url": "https://example.com/?a=1&b=2"}, http.StatusOK)

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "a=1&b=2")
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	handler := CORSMiddleware([]string{"https://checkout.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodOptions, "/process-subscription-payment", nil)
	req.Header.Set("Origin", "https://checkout.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://checkout.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSecureMiddleware(t *testing.T) {
	handler := SecureMiddleware(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
