package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Origins is the set of browser origins allowed to call the API with
// credentials and to open realtime connections.
type Origins map[string]struct{}

func NewOrigins(list []string) Origins {
	o := make(Origins, len(list))
	for _, v := range list {
		o[strings.TrimRight(v, "/")] = struct{}{}
	}
	return o
}

// Allowed reports whether origin may talk to the server. Requests without an
// Origin header (curl, server-to-server) are allowed.
func (o Origins) Allowed(origin string) bool {
	if origin == "" {
		return true
	}
	_, ok := o[origin]
	return ok
}

// CheckOrigin is suitable for websocket upgraders.
func (o Origins) CheckOrigin(r *http.Request) bool {
	return o.Allowed(r.Header.Get("Origin"))
}

// CORS answers preflights and sets credentialed CORS headers for allowed
// origins. Disallowed origins get 403.
func CORS(origins Origins) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if !origins.Allowed(origin) {
			log.Warn().Str("origin", origin).Str("path", c.Request.URL.Path).Msg("origin not allowed")
			abortError(c, http.StatusForbidden, "origin not allowed")
			return
		}
		if origin != "" {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			h.Add("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestLogger logs one line per request, skipping the long-lived realtime
// endpoints whose polling would drown everything else.
func RequestLogger(skipPrefixes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		for _, p := range skipPrefixes {
			if strings.HasPrefix(path, p) {
				return
			}
		}
		status := c.Writer.Status()
		ev := log.Info()
		if status >= http.StatusInternalServerError {
			ev = log.Error()
		}
		ev.Str("method", c.Request.Method).Str("path", path).Int("status", status).Dur("dur", time.Since(start)).Msg("http")
	}
}
