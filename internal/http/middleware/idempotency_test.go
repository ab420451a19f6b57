package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func idemRouter(opts IdempotencyOptions, seen *string) *gin.Engine {
	r := gin.New()
	r.Use(IdempotencyValidator(opts))
	r.POST("/send", func(c *gin.Context) {
		k, ok := GetIdempotencyKey(c)
		if ok {
			*seen = k
		}
		c.Status(http.StatusCreated)
	})
	return r
}

func TestGetIdempotencyKey_Absent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if k, ok := GetIdempotencyKey(c); k != "" || ok {
		t.Fatalf("expected empty key when not set")
	}
	c.Set(ctxKeyIdemKey, 123)
	if _, ok := GetIdempotencyKey(c); ok {
		t.Fatalf("non-string value must read as absent")
	}
}

func TestIdempotencyValidator(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name     string
		opts     IdempotencyOptions
		header   string
		wantCode int
		wantKey  string
	}{
		{"no header", IdempotencyOptions{}, "", http.StatusCreated, ""},
		{"valid", IdempotencyOptions{}, "  msg-1:retry.A~  ", http.StatusCreated, "msg-1:retry.A~"},
		{"bad chars", IdempotencyOptions{}, "not ok!", http.StatusBadRequest, ""},
		{"too long default", IdempotencyOptions{}, strings.Repeat("a", 129), http.StatusBadRequest, ""},
		{"custom max", IdempotencyOptions{MaxLen: 4}, "abcde", http.StatusBadRequest, ""},
		{"custom pattern", IdempotencyOptions{Pattern: regexp.MustCompile(`^[0-9]+$`)}, "abc", http.StatusBadRequest, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			r := idemRouter(tc.opts, &seen)
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/send", nil)
			if tc.header != "" {
				req.Header.Set(HeaderIdempotencyKey, tc.header)
			}
			r.ServeHTTP(w, req)

			if w.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantCode)
			}
			if seen != tc.wantKey {
				t.Fatalf("key = %q, want %q", seen, tc.wantKey)
			}
			if tc.wantCode == http.StatusBadRequest {
				var body map[string]any
				if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
					t.Fatalf("invalid json: %v", err)
				}
				if body["code"] != "bad_idempotency_key" || body["success"] != false {
					t.Fatalf("unexpected body %v", body)
				}
			}
		})
	}
}
