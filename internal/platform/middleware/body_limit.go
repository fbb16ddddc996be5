package middleware

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// BodyLimit caps request bodies at defaultLimit, or at the limit of the
// longest matching path prefix in overrides (e.g. the tariff spreadsheet
// upload). Limits are human readable: "512K", "1M", "10M", "1G" or bytes.
// Oversized requests get 413.
func BodyLimit(defaultLimit string, overrides map[string]string) echo.MiddlewareFunc {
	def := parseLimit(defaultLimit)
	parsed := make(map[string]int64, len(overrides))
	for prefix, l := range overrides {
		parsed[prefix] = parseLimit(l)
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			limit := limitFor(req.URL.Path, def, parsed)
			if req.ContentLength > limit {
				return tooLarge(limit)
			}
			req.Body = &limitedReadCloser{ReadCloser: req.Body, remaining: limit, limit: limit}
			return next(c)
		}
	}
}

func limitFor(path string, def int64, overrides map[string]int64) int64 {
	best, limit := -1, def
	for prefix, l := range overrides {
		if strings.HasPrefix(path, prefix) && len(prefix) > best {
			best, limit = len(prefix), l
		}
	}
	return limit
}

type limitedReadCloser struct {
	io.ReadCloser
	remaining int64
	limit     int64
}

func (r *limitedReadCloser) Read(p []byte) (int, error) {
	if r.remaining < 0 {
		return 0, tooLarge(r.limit)
	}
	if int64(len(p)) > r.remaining+1 {
		p = p[:r.remaining+1]
	}
	n, err := r.ReadCloser.Read(p)
	r.remaining -= int64(n)
	if r.remaining < 0 {
		return 0, tooLarge(r.limit)
	}
	return n, err
}

func tooLarge(limit int64) error {
	return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
		fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", limit))
}

// parseLimit falls back to 1 MB on empty or malformed input.
func parseLimit(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 1 << 20
	}
	s = strings.TrimSuffix(s, "B")

	var multiplier int64 = 1
	switch {
	case strings.HasSuffix(s, "G"):
		multiplier = 1 << 30
	case strings.HasSuffix(s, "M"):
		multiplier = 1 << 20
	case strings.HasSuffix(s, "K"):
		multiplier = 1 << 10
	}
	if multiplier > 1 {
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 1 << 20
	}
	return n * multiplier
}
