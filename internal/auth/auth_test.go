package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresSecret(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)

	a, err := New("secret")
	require.NoError(t, err)
	assert.NotNil(t, a)
}

func TestTokenRoundTrip(t *testing.T) {
	a, err := New("secret")
	require.NoError(t, err)

	userID := uuid.New()
	token, err := a.GenerateToken(userID, "pamella")
	require.NoError(t, err)

	gotID, gotName, err := a.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, gotID)
	assert.Equal(t, "pamella", gotName)
}

func TestParseTokenWrongKey(t *testing.T) {
	signer, err := New("secret-a")
	require.NoError(t, err)
	verifier, err := New("secret-b")
	require.NoError(t, err)

	token, err := signer.GenerateToken(uuid.New(), "pamella")
	require.NoError(t, err)

	_, _, err = verifier.ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenGarbage(t *testing.T) {
	a, err := New("secret")
	require.NoError(t, err)

	_, _, err = a.ParseToken("token-12345")
	assert.Error(t, err)
}

func newMiddlewareRouter(t *testing.T, a *Auth) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", a.Middleware(), func(c *gin.Context) {
		id := c.MustGet(ContextUserID).(uuid.UUID)
		c.JSON(http.StatusOK, gin.H{"userId": id.String()})
	})
	return r
}

func TestMiddleware(t *testing.T) {
	a, err := New("secret")
	require.NoError(t, err)
	r := newMiddlewareRouter(t, a)

	userID := uuid.New()
	token, err := a.GenerateToken(userID, "pamella")
	require.NoError(t, err)

	t.Run("valid token", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), userID.String())
	})

	t.Run("missing header", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Token não fornecido")
	})

	t.Run("missing bearer prefix", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", token)
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Formato de token inválido")
	})

	t.Run("tampered token", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token+"x")
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "Token inválido")
	})
}
