package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exam-portal/internal/i18n"
)

func TestFailLocalizesMessage(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name string
		lang string
		code ErrCode
		want string
	}{
		{name: "english", lang: "en", code: ErrAlreadyAttempted, want: "You have already attempted this exam."},
		{name: "indonesian", lang: "id", code: ErrAlreadyAttempted, want: "Anda sudah mengerjakan ujian ini."},
		{name: "unknown code", lang: "en", code: ErrCode("NOPE"), want: "An unexpected error occurred."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(RequestIDMiddleware(), i18n.Middleware())
			r.GET("/", func(c *gin.Context) { Fail(c, http.StatusConflict, tc.code) })

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Accept-Language", tc.lang)
			req.Header.Set("X-Request-ID", "req-1")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != http.StatusConflict {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusConflict)
			}
			var body Response
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error == nil || body.Error.Code != tc.code {
				t.Fatalf("error = %+v, want code %s", body.Error, tc.code)
			}
			if body.Error.Message != tc.want {
				t.Errorf("message = %q, want %q", body.Error.Message, tc.want)
			}
			if body.Metadata.RequestID != "req-1" {
				t.Errorf("request id = %q, want req-1", body.Metadata.RequestID)
			}
		})
	}
}

func TestGetMessageDefaultLanguage(t *testing.T) {
	if got := GetMessage(ErrNotFound); got != "Resource not found." {
		t.Errorf("GetMessage() = %q", got)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{name: "proxy id kept", header: "edge-7f3a.01", keep: true},
		{name: "missing", header: "", keep: false},
		{name: "header injection", header: "abc\r\nSet-Cookie: x", keep: false},
		{name: "too long", header: strings.Repeat("a", 65), keep: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(RequestIDMiddleware())
			r.GET("/", func(c *gin.Context) { Success(c, http.StatusOK, nil) })

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header["X-Request-Id"] = []string{tc.header}
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			var body Response
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			got := body.Metadata.RequestID
			if got != w.Header().Get("X-Request-ID") {
				t.Errorf("body id %q differs from header %q", got, w.Header().Get("X-Request-ID"))
			}
			if tc.keep && got != tc.header {
				t.Errorf("request id = %q, want %q", got, tc.header)
			}
			if !tc.keep && (got == "" || got == tc.header) {
				t.Errorf("request id = %q, want a fresh one", got)
			}
		})
	}
}

func TestNewPagination(t *testing.T) {
	if p := NewPagination(2, 10, 21); p.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", p.TotalPages)
	}
	if p := NewPagination(1, 10, 0); p.TotalPages != 0 {
		t.Errorf("TotalPages = %d, want 0", p.TotalPages)
	}
}
