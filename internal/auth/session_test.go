package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmori/go-civic-response/internal/models"
)

func testUser() *models.User {
	return &models.User{
		ID:    "u1",
		Email: "amira@example.com",
		Name:  "Amira",
		Role:  models.RoleCitizen,
	}
}

func TestManager_IssueParseRoundTrip(t *testing.T) {
	m := NewManager("test-secret", time.Hour)

	token, sess, err := m.Issue(testUser())
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, "u1", sess.UserID)
	assert.Equal(t, models.RoleCitizen, sess.Role)
	assert.WithinDuration(t, time.Now().Add(time.Hour), sess.ExpiresAt, 5*time.Second)

	parsed, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, sess.UserID, parsed.UserID)
	assert.Equal(t, sess.Role, parsed.Role)
	assert.False(t, parsed.Expired(time.Now()))
}

func TestManager_ParseRejectsExpired(t *testing.T) {
	m := NewManager("test-secret", -time.Minute)

	token, _, err := m.Issue(testUser())
	require.NoError(t, err)

	_, err = m.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManager_ParseRejectsWrongSecret(t *testing.T) {
	issuer := NewManager("secret-a", time.Hour)
	verifier := NewManager("secret-b", time.Hour)

	token, _, err := issuer.Issue(testUser())
	require.NoError(t, err)

	_, err = verifier.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManager_ParseRejectsGarbage(t *testing.T) {
	m := NewManager("test-secret", time.Hour)

	_, err := m.Parse("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func setupAuthRouter(m *Manager, requiredRole models.Role) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	group := r.Group("", Middleware(m))
	group.GET("/whoami", func(c *gin.Context) {
		sess, _ := SessionFrom(c)
		c.JSON(http.StatusOK, gin.H{"user_id": sess.UserID})
	})
	group.GET("/restricted", RequireRole(requiredRole), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestMiddleware_SessionInContext(t *testing.T) {
	m := NewManager("test-secret", time.Hour)
	router := setupAuthRouter(m, models.RoleAuthority)

	token, _, err := m.Issue(testUser())
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "u1")
}

func TestMiddleware_RejectsMissingOrBadToken(t *testing.T) {
	m := NewManager("test-secret", time.Hour)
	router := setupAuthRouter(m, models.RoleAuthority)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/whoami", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole(t *testing.T) {
	m := NewManager("test-secret", time.Hour)
	router := setupAuthRouter(m, models.RoleAuthority)

	citizenToken, _, err := m.Issue(testUser())
	require.NoError(t, err)

	authorityUser := &models.User{ID: "gov", Role: models.RoleAuthority}
	authorityToken, _, err := m.Issue(authorityUser)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/restricted", nil)
	req.Header.Set("Authorization", "Bearer "+citizenToken)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/restricted", nil)
	req.Header.Set("Authorization", "Bearer "+authorityToken)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct-horse", hash)

	assert.True(t, CheckPassword(hash, "correct-horse"))
	assert.False(t, CheckPassword(hash, "wrong"))
}
