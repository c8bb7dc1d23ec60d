package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"matwana-controlplane/pkg/errutil"
	"matwana-controlplane/pkg/identity"
	"matwana-controlplane/pkg/util"
)

type stubResolver struct {
	sessions map[string]*identity.Principal
}

func (s *stubResolver) Resolve(_ context.Context, token string) (*identity.Principal, error) {
	if p, ok := s.sessions[token]; ok {
		return p, nil
	}
	return nil, errutil.Unauthorized("invalid or expired token")
}

func newTestRouter(resolver identity.Resolver) *gin.Engine {
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(Error())

	authed := engine.Group("/", RequireAuth(resolver))
	authed.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, Principal(c))
	})
	authed.GET("/admin", RequireRole(identity.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	return engine
}

func TestRequireAuth(t *testing.T) {
	token := util.GenerateSessionToken()
	resolver := &stubResolver{sessions: map[string]*identity.Principal{
		token: {UserID: "u1", Role: identity.RoleFreelancer},
	}}
	router := newTestRouter(resolver)

	// No credential at all.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// Unknown token.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+util.GenerateSessionToken())
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// Valid session resolves to the principal.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"user_id":"u1"`)
}

func TestRequireRole(t *testing.T) {
	freelancerToken := util.GenerateSessionToken()
	adminToken := util.GenerateSessionToken()
	resolver := &stubResolver{sessions: map[string]*identity.Principal{
		freelancerToken: {UserID: "u1", Role: identity.RoleFreelancer},
		adminToken:      {UserID: "u2", Role: identity.RoleAdmin},
	}}
	router := newTestRouter(resolver)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+freelancerToken)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestBearerToken(t *testing.T) {
	require.Equal(t, "abc", bearerToken("Bearer abc"))
	require.Empty(t, bearerToken("abc"))
	require.Empty(t, bearerToken(""))
	require.Empty(t, bearerToken("Basic abc"))
}
