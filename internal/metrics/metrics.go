package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "pages"

	OpLoad   = "load"
	OpSave   = "save"
	OpRemove = "remove"

	ResultOK      = "ok"
	ResultMissing = "missing"
	ResultError   = "error"
	ResultCorrupt = "corrupt"
)

var (
	pageIO = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "page",
			Name:      "io_total",
			Help:      "Page object operations against the backing store. Broken down by operation and result.",
		},
		[]string{"op", "result"},
	)

	streamOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "ops_total",
			Help:      "Logical stream operations. Broken down by operation.",
		},
		[]string{"op"},
	)

	bytesTransferred = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "bytes_total",
			Help:      "Bytes returned by reads and accepted by writes.",
		},
		[]string{"direction"},
	)

	partialReads = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "partial_reads_total",
			Help:      "Reads that stopped early because a page could not be loaded.",
		},
	)
)

var register sync.Once
var Registry *prometheus.Registry

// Register registers metrics. This is always called only once.
func Register() {
	register.Do(func() {
		Registry = prometheus.NewRegistry()
		Registry.MustRegister(pageIO, streamOps, bytesTransferred, partialReads)
	})
}

func Handler() http.Handler {
	Register()
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func PageIO(op, result string) {
	pageIO.WithLabelValues(op, result).Inc()
}

func StreamOp(op string) {
	streamOps.WithLabelValues(op).Inc()
}

func BytesRead(n int) {
	bytesTransferred.WithLabelValues("read").Add(float64(n))
}

func BytesWritten(n int) {
	bytesTransferred.WithLabelValues("write").Add(float64(n))
}

func PartialRead() {
	partialReads.Inc()
}
