package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dx-junkyard/plura/internal/platform/logger"
)

func authRouter(t *testing.T) (*gin.Engine, *uuid.UUID) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	var seen uuid.UUID
	r := gin.New()
	r.GET("/me", NewAuthMiddleware(log).RequireAuth(), func(c *gin.Context) {
		id, ok := UserID(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		seen = id
		c.Status(http.StatusOK)
	})
	return r, &seen
}

func signToken(t *testing.T, secret, sub string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": sub})
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestRequireAuthReadsConfiguredSecret(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "unit-secret")

	userID := uuid.New()
	r, seen := authRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "unit-secret", userID.String()))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if *seen != userID {
		t.Fatalf("handler saw user %s, want %s", *seen, userID)
	}
}

func TestRequireAuthRejectsBadTokens(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "unit-secret")

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + func() string {
			tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": uuid.New().String()})
			s, _ := tok.SignedString([]byte("other-secret"))
			return s
		}(), http.StatusUnauthorized},
		{"non-uuid subject", "", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, _ := authRouter(t)
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			header := tc.header
			if tc.name == "non-uuid subject" {
				header = "Bearer " + signToken(t, "unit-secret", "not-a-uuid")
			}
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}
