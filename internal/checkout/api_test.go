package checkout

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/luikyv/franchise-checkout/internal/vindi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "super-secret-jwt-token-with-at-least-32-characters"

func newTestMux(f *fixture) *http.ServeMux {
	mux := http.NewServeMux()
	NewServer(f.service, testJWTSecret).RegisterRoutes(mux)
	return mux
}

func postPayment(mux *http.ServeMux, body string, headers map[string]string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, "/process-subscription-payment", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

func TestServer_PIXPayment(t *testing.T) {
	f := newFixture(t, 4)
	f.gateway.pixAfter = 1
	f.gateway.pixFields = vindi.ResponseFields{"qrcode_text": testEMV}

	w := postPayment(newTestMux(f), `{"token": "`+testToken+`", "paymentMethod": "pix"}`, nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, testEMV, resp["pix_copia_cola"])
	pixData, ok := resp["pix"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, testEMV, pixData["qr_code"])
}

func TestServer_ExpiredLink(t *testing.T) {
	f := newFixture(t, 1)
	link := f.storage.links[testToken]
	link.ExpiresAt = testNow.Add(-time.Minute)
	f.storage.links[testToken] = link

	w := postPayment(newTestMux(f), `{"token": "`+testToken+`", "paymentMethod": "pix"}`, nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"success": false, "error": "Link de pagamento inválido ou expirado"}`, w.Body.String())
	assert.Empty(t, f.gateway.calls)
}

func TestServer_InvalidPaymentMethod(t *testing.T) {
	f := newFixture(t, 1)

	w := postPayment(newTestMux(f), `{"token": "`+testToken+`", "paymentMethod": "boleto"}`, nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["success"])
	assert.NotEmpty(t, resp["error"])
	assert.Empty(t, f.gateway.calls)
}

func TestServer_RecordsBearerSubject(t *testing.T) {
	f := newFixture(t, 1)
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: []byte(testJWTSecret)}, nil)
	require.NoError(t, err)
	token, err := jwt.Signed(signer).Claims(jwt.Claims{
		Subject: "user-42",
		Expiry:  jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).Serialize()
	require.NoError(t, err)

	w := postPayment(newTestMux(f), `{"token": "`+testToken+`", "paymentMethod": "credit_card"}`, map[string]string{
		"Authorization": "Bearer " + token,
	})

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, f.storage.transactions, 1)
	require.NotNil(t, f.storage.transactions[0].UserID)
	assert.Equal(t, "user-42", *f.storage.transactions[0].UserID)
}

func TestServer_InvalidBearerTokenIsIgnored(t *testing.T) {
	f := newFixture(t, 1)

	w := postPayment(newTestMux(f), `{"token": "`+testToken+`", "paymentMethod": "credit_card"}`, map[string]string{
		"Authorization": "Bearer not-a-jwt",
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, f.storage.transactions[0].UserID)
}

func TestServer_Health(t *testing.T) {
	f := newFixture(t, 1)
	w := httptest.NewRecorder()

	newTestMux(f).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": "ok"}`, w.Body.String())
}
