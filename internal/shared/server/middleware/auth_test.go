package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"medocs-backend/internal/shared/auth"
)

func TestAuthAllowsOptionsWithoutIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Auth("dev"))
	router.OPTIONS("/api/v1/documents/current", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/documents/current", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
}

func identityRouter(env string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Auth(env))
	router.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"id":   UserIDFromContext(c),
			"name": UserNameFromContext(c),
			"role": RoleFromContext(c),
		})
	})
	router.GET("/review", RequireRole(auth.RoleDoctor), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func TestAuthBearerToken(t *testing.T) {
	auth.Configure("middleware-secret", "dev")
	t.Cleanup(func() { auth.Configure("", "") })

	token, err := auth.SignJWT(auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "dr-1"},
		Name:             "Dr. One",
		Role:             auth.RoleDoctor,
	})
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}

	router := identityRouter("production")
	req := httptest.NewRequest(http.MethodGet, "/review", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected doctor to pass, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	want := `{"id":"dr-1","name":"Dr. One","role":"doctor"}`
	if resp.Body.String() != want {
		t.Fatalf("unexpected identity %s", resp.Body.String())
	}
}

func TestAuthRejections(t *testing.T) {
	cases := []struct {
		name   string
		env    string
		header string
		value  string
		path   string
		want   int
	}{
		{name: "no identity", env: "dev", path: "/whoami", want: http.StatusUnauthorized},
		{name: "bad scheme", env: "dev", header: "Authorization", value: "Basic abc", path: "/whoami", want: http.StatusUnauthorized},
		{name: "bad token", env: "dev", header: "Authorization", value: "Bearer nope", path: "/whoami", want: http.StatusUnauthorized},
		{name: "guest in production", env: "production", header: "X-Guest-Id", value: "p1", path: "/whoami", want: http.StatusUnauthorized},
		{name: "guest is not a doctor", env: "dev", header: "X-Guest-Id", value: "p1", path: "/review", want: http.StatusForbidden},
		{name: "guest allowed in dev", env: "dev", header: "X-Guest-Id", value: "p1", path: "/whoami", want: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := identityRouter(tc.env)
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)
			if resp.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, resp.Code)
			}
		})
	}
}
