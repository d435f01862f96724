package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

func TestBrotli(t *testing.T) {
	gin.SetMode(gin.TestMode)
	big := strings.Repeat("soal ujian ", 400)
	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 4096)...)

	r := gin.New()
	r.Use(Brotli())
	r.GET("/big", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"text": big}) })
	r.GET("/small", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	r.GET("/image", func(c *gin.Context) { c.Data(http.StatusOK, "image/png", png) })

	tests := []struct {
		name     string
		path     string
		encoding string
		wantBr   bool
	}{
		{"large json", "/big", "gzip, br", true},
		{"client without br", "/big", "gzip", false},
		{"br refused", "/big", "br;q=0", false},
		{"below min length", "/small", "br", false},
		{"already compressed image", "/image", "br", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("Accept-Encoding", tt.encoding)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			gotBr := w.Header().Get("Content-Encoding") == "br"
			if gotBr != tt.wantBr {
				t.Fatalf("Content-Encoding br = %v, want %v", gotBr, tt.wantBr)
			}

			body := w.Body.Bytes()
			if gotBr {
				body, _ = io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
			}
			switch tt.path {
			case "/big":
				if !strings.Contains(string(body), big) {
					t.Error("body does not round-trip")
				}
			case "/image":
				if !bytes.Equal(body, png) {
					t.Error("image body altered")
				}
			}
		})
	}
}

func TestBrotliSkipsStreams(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Brotli())
	r.GET("/monitor", func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.String(http.StatusOK, strings.Repeat("data: {}\n\n", 200))
	})

	req := httptest.NewRequest(http.MethodGet, "/monitor", nil)
	req.Header.Set("Accept-Encoding", "br")
	req.Header.Set("Accept", "text/event-stream")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if enc := w.Header().Get("Content-Encoding"); enc != "" {
		t.Errorf("Content-Encoding = %q, want none", enc)
	}
}
