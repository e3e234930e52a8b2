package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/csahub/pkg/metrics"
)

// unmatchedRoute labels requests that hit no route, so scanners probing
// random paths cannot blow up label cardinality.
const unmatchedRoute = "unmatched"

// Metrics observes request latency by route template. Paths under any of the
// skip prefixes (probes, the metrics endpoint itself) are not recorded.
func Metrics(skipPrefixes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, prefix := range skipPrefixes {
			if prefix != "" && strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}

		metrics.InFlight.Inc()
		start := time.Now()
		defer metrics.InFlight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		metrics.APILatency.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
