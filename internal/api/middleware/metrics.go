package middleware

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector counts requests by method and status class.
type MetricsCollector struct {
	requests *prometheus.CounterVec
}

func NewMetricsCollector(reg prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "marginal_http_requests_total",
			Help: "HTTP requests by method and status class.",
		}, []string{"method", "class"}),
	}
}

// Middleware returns middleware that counts requests and errors.
func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)
		mc.requests.WithLabelValues(r.Method, statusClass(rw.statusCode)).Inc()
	})
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}
