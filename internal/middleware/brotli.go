package middleware

import (
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

// BrotliConfig tunes response compression. Responses shorter than MinLength
// are sent as is.
type BrotliConfig struct {
	Quality   int
	MinLength int
	// Skipper disables compression for matching requests.
	Skipper func(c *gin.Context) bool
}

var DefaultBrotliConfig = BrotliConfig{
	Quality:   brotli.DefaultCompression,
	MinLength: 1024,
}

// incompressibleTypes are already compressed. Report PDFs pass through.
var incompressibleTypes = []string{
	"application/pdf",
	"application/zip",
	"application/octet-stream",
	"image/",
}

type encodeMode int

const (
	modeUndecided encodeMode = iota
	modeBrotli
	modePlain
)

// brotliWriter buffers the body until MinLength bytes have been written, then
// decides once from the Content-Type whether to compress.
type brotliWriter struct {
	gin.ResponseWriter
	enc       *brotli.Writer
	buf       []byte
	minLength int
	mode      encodeMode
}

func (bw *brotliWriter) Write(data []byte) (int, error) {
	switch bw.mode {
	case modePlain:
		return bw.ResponseWriter.Write(data)
	case modeBrotli:
		if _, err := bw.enc.Write(data); err != nil {
			return 0, err
		}
		return len(data), nil
	}

	bw.buf = append(bw.buf, data...)
	if len(bw.buf) < bw.minLength {
		return len(data), nil
	}

	bw.decide()
	pending := bw.buf
	bw.buf = nil
	var err error
	if bw.mode == modeBrotli {
		_, err = bw.enc.Write(pending)
	} else {
		_, err = bw.ResponseWriter.Write(pending)
	}
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

func (bw *brotliWriter) WriteString(s string) (int, error) {
	return bw.Write([]byte(s))
}

func (bw *brotliWriter) decide() {
	if !compressible(bw.ResponseWriter.Header().Get("Content-Type")) {
		bw.mode = modePlain
		return
	}
	bw.mode = modeBrotli
	h := bw.ResponseWriter.Header()
	h.Set("Content-Encoding", "br")
	h.Del("Content-Length")
}

// Flush sends anything still buffered uncompressed and switches the
// response to plain mode; streaming handlers get their bytes immediately.
func (bw *brotliWriter) Flush() {
	if bw.mode == modeUndecided {
		bw.mode = modePlain
	}
	if bw.mode == modeBrotli {
		_ = bw.enc.Flush()
	}
	_ = bw.finishPlain()
	bw.ResponseWriter.Flush()
}

func (bw *brotliWriter) finishPlain() error {
	if len(bw.buf) == 0 {
		return nil
	}
	_, err := bw.ResponseWriter.Write(bw.buf)
	bw.buf = nil
	return err
}

// close writes out a short body uncompressed or terminates the brotli stream.
func (bw *brotliWriter) close() error {
	if bw.mode == modeBrotli {
		return bw.enc.Close()
	}
	return bw.finishPlain()
}

// Brotli compresses responses for clients that accept "br".
func Brotli() gin.HandlerFunc {
	return BrotliWithConfig(DefaultBrotliConfig)
}

func BrotliWithConfig(cfg BrotliConfig) gin.HandlerFunc {
	if cfg.Quality < brotli.BestSpeed || cfg.Quality > brotli.BestCompression {
		cfg.Quality = brotli.DefaultCompression
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultBrotliConfig.MinLength
	}

	return func(c *gin.Context) {
		if isStreaming(c) || (cfg.Skipper != nil && cfg.Skipper(c)) || !acceptsBrotli(c.Request) {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")
		bw := &brotliWriter{
			ResponseWriter: c.Writer,
			enc:            brotli.NewWriterLevel(c.Writer, cfg.Quality),
			minLength:      cfg.MinLength,
		}
		c.Writer = bw
		defer func() {
			if err := bw.close(); err != nil {
				_ = c.Error(err)
			}
		}()
		c.Next()
	}
}

// isStreaming matches the metrics event stream and the notification socket,
// neither of which survives a buffering writer.
func isStreaming(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "text/event-stream") ||
		strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}

func compressible(contentType string) bool {
	ct := strings.ToLower(contentType)
	for _, t := range incompressibleTypes {
		if strings.HasPrefix(ct, t) {
			return false
		}
	}
	return true
}

func acceptsBrotli(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		// "br;q=0.8" still counts.
		name, _, _ := strings.Cut(strings.TrimSpace(enc), ";")
		if strings.EqualFold(name, "br") {
			return true
		}
	}
	return false
}
