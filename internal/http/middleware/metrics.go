package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	metrics "github.com/sifan077/clicklink/internal/infra/prometheus"
)

// Metrics records request count and latency per route pattern. Unmatched
// requests share one label so arbitrary paths cannot blow up cardinality.
func Metrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		route := "unmatched"
		if r := c.Route(); r != nil && r.Path != "/" && r.Path != "" {
			route = r.Path
		}

		labels := []string{c.Method(), route, strconv.Itoa(status)}
		metrics.RequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		metrics.RequestTotal.WithLabelValues(labels...).Inc()

		return err
	}
}
