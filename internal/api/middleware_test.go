package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rozanalabs/catalog-service/internal/models"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestAuthMiddlewareUsesConfiguredSecret(t *testing.T) {
	r := gin.New()
	r.Use(AuthMiddleware("topsecret"), AdminMiddleware())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	token := signToken(t, "topsecret", jwt.MapClaims{
		"user_id": 7,
		"role":    "Admin",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// A token signed with a different secret is rejected.
	wrong := signToken(t, "othersecret", jwt.MapClaims{"user_id": 7, "role": "Admin"})
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+wrong)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOptionalAuthResolvesActor(t *testing.T) {
	r := gin.New()
	r.Use(OptionalAuthMiddleware("topsecret"))
	var actor models.Actor
	r.GET("/x", func(c *gin.Context) {
		actor = CurrentActor(c)
		c.Status(http.StatusOK)
	})

	// Anonymous request attributes to the system actor.
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	_, ok := actor.UserID()
	assert.False(t, ok)

	token := signToken(t, "topsecret", jwt.MapClaims{
		"user_id": 42,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	id, ok := actor.UserID()
	require.True(t, ok)
	assert.Equal(t, int64(42), id)
}
