package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/satymtripathi/microbiology/pkg/logger"
	"github.com/satymtripathi/microbiology/pkg/repository"
	"github.com/satymtripathi/microbiology/pkg/types"
)

const testCookie = "microbio_session"

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuthRouter(f *serviceFixture) http.Handler {
	return NewHandlers(f.service, CookieSettings{Name: testCookie}, logger.Discard()).NewRouter()
}

func TestLoginHandler(t *testing.T) {
	t.Run("json login sets cookie and landing", func(t *testing.T) {
		f := newServiceFixture(PlainPINManager{})
		f.users.On("GetByUsername", mock.Anything, "drjane").Return(drJane(), nil)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
			strings.NewReader(`{"username":"drjane","pin":"1234"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		newAuthRouter(f).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Token   types.AuthToken  `json:"token"`
			User    types.UserClaims `json:"user"`
			Landing string           `json:"landing"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "/doctor/submit", body.Landing)
		assert.Equal(t, "Jane Doe", body.User.FullName)
		assert.NotEmpty(t, body.Token.AccessToken)

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, testCookie, cookies[0].Name)
		assert.Equal(t, body.Token.AccessToken, cookies[0].Value)
		assert.True(t, cookies[0].HttpOnly)
	})

	t.Run("form login with wrong pin", func(t *testing.T) {
		f := newServiceFixture(PlainPINManager{})
		f.users.On("GetByUsername", mock.Anything, "drjane").Return(drJane(), nil)

		form := url.Values{"username": {"drjane"}, "pin": {"0000"}}
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		newAuthRouter(f).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Invalid credentials. Please try again.")
		assert.Empty(t, rec.Result().Cookies())
	})

	t.Run("missing fields look like any other failure", func(t *testing.T) {
		f := newServiceFixture(PlainPINManager{})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"username":"drjane"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		newAuthRouter(f).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Invalid credentials. Please try again.")
	})
}

func TestLoginOptionsHandler(t *testing.T) {
	f := newServiceFixture(PlainPINManager{})
	f.users.On("ListActive", mock.Anything).Return([]*types.User{drJane()}, nil)

	rec := httptest.NewRecorder()
	newAuthRouter(f).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/users", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"users":[{"username":"drjane","label":"Jane Doe (Doctor)"}]}`, rec.Body.String())
}

func TestLogoutHandler(t *testing.T) {
	f := newServiceFixture(PlainPINManager{})
	ctx := context.Background()
	f.users.On("GetByUsername", mock.Anything, "drjane").Return(drJane(), nil)
	login, err := f.service.Authenticate(ctx, "drjane", "1234")
	require.NoError(t, err)

	f.tokens.On("IsRevoked", mock.Anything, login.User.TokenID).Return(false, nil)
	f.tokens.On("Revoke", mock.Anything, login.User.TokenID, mock.Anything).Return(nil)
	f.tokens.On("PurgeExpired", mock.Anything, mock.Anything).Return(int64(0), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: login.Token.AccessToken})
	rec := httptest.NewRecorder()
	newAuthRouter(f).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "", cookies[0].Value)
	assert.True(t, cookies[0].MaxAge < 0)
	f.tokens.AssertCalled(t, "Revoke", mock.Anything, login.User.TokenID, mock.Anything)
}

func TestRequireSessionAndAdminRoutes(t *testing.T) {
	f := newServiceFixture(PlainPINManager{})
	admin := &types.User{ID: "u-admin", Username: "root", FullName: "Root", Role: types.RoleAdmin, PIN: "0000", IsActive: true}
	f.users.On("GetByUsername", mock.Anything, "root").Return(admin, nil)
	f.users.On("GetByUsername", mock.Anything, "drjane").Return(drJane(), nil)
	f.tokens.On("IsRevoked", mock.Anything, mock.Anything).Return(false, nil)

	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(NewMiddleware(f.service, testCookie, logger.Discard()).RequireSession)
	NewSessionHandlers(f.service, logger.Discard()).RegisterRoutes(api)

	bearer := func(username, pin string) string {
		res, err := f.service.Authenticate(context.Background(), username, pin)
		require.NoError(t, err)
		return "Bearer " + res.Token.AccessToken
	}

	t.Run("no session", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("me", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
		req.Header.Set("Authorization", bearer("drjane", "1234"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"landing":"/doctor/submit"`)
	})

	t.Run("doctor cannot list users", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/users", nil)
		req.Header.Set("Authorization", bearer("drjane", "1234"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin lists doctors", func(t *testing.T) {
		f.users.On("List", mock.Anything, types.RoleDoctor).Return([]*types.User{drJane()}, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/users?role=doctor", nil)
		req.Header.Set("Authorization", bearer("root", "0000"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"count":1`)
		assert.NotContains(t, rec.Body.String(), "1234")
	})

	t.Run("admin creates user", func(t *testing.T) {
		f.users.On("Create", mock.Anything, mock.Anything).Return(nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/users",
			strings.NewReader(`{"username":"labtom","full_name":"Tom Lee","role":"lab_technician","pin":"4321"}`))
		req.Header.Set("Authorization", bearer("root", "0000"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("deactivate unknown user", func(t *testing.T) {
		f.users.On("SetActive", mock.Anything, "0d3c7b9e-2a41-4f6e-8d5c-9e8f7a6b5c4d", false).Return(repository.ErrNotFound)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/users/0d3c7b9e-2a41-4f6e-8d5c-9e8f7a6b5c4d/deactivate", nil)
		req.Header.Set("Authorization", bearer("root", "0000"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("deactivate malformed id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/users/nobody/deactivate", nil)
		req.Header.Set("Authorization", bearer("root", "0000"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		f.users.AssertNotCalled(t, "SetActive", mock.Anything, "nobody", false)
	})
}

func TestTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "cookie-token"})
	assert.Equal(t, "abc", TokenFromRequest(req, testCookie))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "cookie-token"})
	assert.Equal(t, "cookie-token", TokenFromRequest(req, testCookie))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic xyz")
	assert.Equal(t, "", TokenFromRequest(req, testCookie))
}
