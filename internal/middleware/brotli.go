package middleware

import (
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

// BrotliConfig tunes response compression.
type BrotliConfig struct {
	Quality int
	// MinLength is the body size below which responses are sent as-is.
	MinLength int
	// Skipper bypasses compression for matching requests.
	Skipper func(c *gin.Context) bool
	// Compressible reports whether a Content-Type is worth compressing.
	Compressible func(contentType string) bool
}

var DefaultBrotliConfig = BrotliConfig{
	Quality:      brotli.DefaultCompression,
	MinLength:    1024,
	Compressible: compressibleType,
}

// brotliWriter holds the body until it knows whether compressing pays off.
// Once decided, bytes go straight to the brotli stream or the wire.
type brotliWriter struct {
	gin.ResponseWriter
	cfg     *BrotliConfig
	writer  *brotli.Writer
	buf     []byte
	decided bool
	encode  bool
}

func (bw *brotliWriter) Write(data []byte) (int, error) {
	if bw.decided {
		if bw.encode {
			return bw.writer.Write(data)
		}
		return bw.ResponseWriter.Write(data)
	}

	bw.buf = append(bw.buf, data...)
	if len(bw.buf) < bw.cfg.MinLength {
		return len(data), nil
	}
	bw.decide(true)
	if err := bw.drain(); err != nil {
		return 0, err
	}
	return len(data), nil
}

func (bw *brotliWriter) WriteString(s string) (int, error) {
	return bw.Write([]byte(s))
}

// Flush is called by streaming handlers; whatever is buffered leaves uncompressed.
func (bw *brotliWriter) Flush() {
	if !bw.decided {
		bw.decide(false)
		_ = bw.drain()
	} else if bw.encode {
		_ = bw.writer.Flush()
	}
	bw.ResponseWriter.Flush()
}

// decide fixes the encoding. Headers are still unsent at this point.
func (bw *brotliWriter) decide(bigEnough bool) {
	bw.decided = true
	h := bw.ResponseWriter.Header()
	if !bigEnough || h.Get("Content-Encoding") != "" || !bw.cfg.Compressible(h.Get("Content-Type")) {
		return
	}
	switch bw.ResponseWriter.Status() {
	case http.StatusNoContent, http.StatusNotModified:
		return
	}
	bw.encode = true
	h.Set("Content-Encoding", "br")
	h.Del("Content-Length")
	bw.writer = brotli.NewWriterLevel(bw.ResponseWriter, bw.cfg.Quality)
}

func (bw *brotliWriter) drain() error {
	if len(bw.buf) == 0 {
		return nil
	}
	var err error
	if bw.encode {
		_, err = bw.writer.Write(bw.buf)
	} else {
		_, err = bw.ResponseWriter.Write(bw.buf)
	}
	bw.buf = bw.buf[:0]
	return err
}

func (bw *brotliWriter) finish() error {
	if !bw.decided {
		bw.decide(false)
	}
	if err := bw.drain(); err != nil {
		return err
	}
	if bw.encode {
		return bw.writer.Close()
	}
	return nil
}

func Brotli() gin.HandlerFunc {
	return BrotliWithConfig(DefaultBrotliConfig)
}

func BrotliWithConfig(cfg BrotliConfig) gin.HandlerFunc {
	if cfg.Quality < 0 || cfg.Quality > 11 {
		cfg.Quality = brotli.DefaultCompression
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultBrotliConfig.MinLength
	}
	if cfg.Compressible == nil {
		cfg.Compressible = compressibleType
	}

	return func(c *gin.Context) {
		if shouldSkip(c) || (cfg.Skipper != nil && cfg.Skipper(c)) || !acceptsBrotli(c.Request) {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")

		bw := &brotliWriter{ResponseWriter: c.Writer, cfg: &cfg}
		c.Writer = bw
		defer func() {
			if err := bw.finish(); err != nil {
				_ = c.Error(err)
			}
		}()
		c.Next()
	}
}

// shouldSkip passes through exam streams: SSE must flush per event and a
// WebSocket handshake breaks if the writer is wrapped.
func shouldSkip(c *gin.Context) bool {
	if strings.Contains(c.GetHeader("Accept"), "text/event-stream") {
		return true
	}
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}

// compressibleType accepts text and JSON bodies. Uploaded question images
// are already compressed.
func compressibleType(contentType string) bool {
	ct := strings.ToLower(contentType)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	ct = strings.TrimSpace(ct)
	switch {
	case ct == "":
		return false
	case strings.HasPrefix(ct, "text/"):
		return true
	case strings.HasSuffix(ct, "json"), strings.HasSuffix(ct, "xml"), ct == "application/javascript":
		return true
	}
	return false
}

func acceptsBrotli(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		enc = strings.TrimSpace(strings.ToLower(enc))
		if i := strings.IndexByte(enc, ';'); i >= 0 {
			if strings.HasSuffix(strings.ReplaceAll(enc[i:], " ", ""), "q=0") {
				continue
			}
			enc = strings.TrimSpace(enc[:i])
		}
		if enc == "br" {
			return true
		}
	}
	return false
}
