package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cuffsss/studio/internal"
	"github.com/Cuffsss/studio/internal/config"
	"github.com/Cuffsss/studio/internal/storage"
)

func TestHashPassword(t *testing.T) {
	_, err := HashPassword("short")
	assert.Error(t, err)

	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "hunter22"))
	assert.False(t, CheckPassword(hash, "hunter23"))
	assert.False(t, CheckPassword("not-a-hash", "hunter22"))
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	token, expires, err := issuer.Issue(&internal.User{ID: "u1", Email: "a@example.com"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "a@example.com", claims.Email)
}

func TestTokenIssuer_Rejects(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	token, _, err := issuer.Issue(&internal.User{ID: "u1", Email: "a@example.com"})
	require.NoError(t, err)

	_, err = NewTokenIssuer("other", time.Hour).Parse(token)
	assert.ErrorIs(t, err, internal.ErrUnauthorized)

	expired := NewTokenIssuer("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = expired.Parse(token)
	assert.ErrorIs(t, err, internal.ErrUnauthorized)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = issuer.Parse(none)
	assert.ErrorIs(t, err, internal.ErrUnauthorized)
}

func setupLocal(t *testing.T) (*LocalAuthProvider, *TokenIssuer) {
	store, err := storage.NewFileStorage(t.TempDir(), internal.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.CreateUser(context.Background(), &internal.User{ID: "u1", Email: "a@example.com", PasswordHash: "h"}))
	tokens := NewTokenIssuer("secret", time.Hour)
	return NewLocalAuthProvider(tokens, store, internal.NewNopLogger()), tokens
}

func TestLocalAuthProvider(t *testing.T) {
	provider, tokens := setupLocal(t)
	ctx := context.Background()

	token, _, err := tokens.Issue(&internal.User{ID: "u1", Email: "a@example.com"})
	require.NoError(t, err)
	user, err := provider.ValidateTokenLocal(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", user.Email)

	ghost, _, err := tokens.Issue(&internal.User{ID: "ghost", Email: "g@example.com"})
	require.NoError(t, err)
	_, err = provider.ValidateTokenLocal(ctx, ghost)
	assert.ErrorIs(t, err, internal.ErrUnauthorized)

	_, err = provider.ValidateTokenRemote(ctx, token)
	assert.Error(t, err)
}

func TestRemoteAuthProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"uid": "r1", "email": "r@example.com", "name": "Remote"})
	}))
	defer srv.Close()

	provider := NewRemoteAuthProvider(srv.URL, internal.NewNopLogger())
	user, err := provider.ValidateTokenRemote(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "r1", user.ID)
	assert.Equal(t, "Remote", user.Name)

	_, err = provider.ValidateTokenRemote(context.Background(), "bad")
	assert.ErrorIs(t, err, internal.ErrUnauthorized)
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	provider, tokens := setupLocal(t)
	cfg := &config.Config{AuthMode: config.AuthModeJWT}

	r := gin.New()
	r.GET("/me", AuthMiddleware(provider, cfg), func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUser(c).ID)
	})
	token, _, err := tokens.Issue(&internal.User{ID: "u1", Email: "a@example.com"})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", w.Body.String())

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"code":401`)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
