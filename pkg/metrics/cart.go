package metrics

import "github.com/prometheus/client_golang/prometheus"

// CartMetrics counts cart engine events. The zero value and a nil pointer are
// both safe no-ops.
type CartMetrics struct {
	created      prometheus.Counter
	expired      *prometheus.CounterVec
	converted    prometheus.Counter
	mutations    *prometheus.CounterVec
	mergeSkipped *prometheus.CounterVec
	extensions   *prometheus.CounterVec
}

func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	created := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_created_total",
		Help: "Carts created for owners without an active cart.",
	})
	expired := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_expired_total",
		Help: "Carts transitioned to expired.",
	}, []string{"source"})
	converted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_converted_total",
		Help: "Carts transitioned to converted.",
	})
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_item_mutations_total",
		Help: "Cart item mutations by operation and outcome.",
	}, []string{"operation", "outcome"})
	mergeSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_merge_skipped_items_total",
		Help: "Session cart items dropped during merge or conversion.",
	}, []string{"operation"})
	extensions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_value_extensions_total",
		Help: "Value based expiration extensions by tier.",
	}, []string{"tier"})
	reg.MustRegister(created, expired, converted, mutations, mergeSkipped, extensions)
	return &CartMetrics{
		created:      created,
		expired:      expired,
		converted:    converted,
		mutations:    mutations,
		mergeSkipped: mergeSkipped,
		extensions:   extensions,
	}
}

func (m *CartMetrics) IncCreated() {
	if m == nil || m.created == nil {
		return
	}
	m.created.Inc()
}

// AddExpired records n carts expired by source ("sweep" or "access").
func (m *CartMetrics) AddExpired(source string, n int64) {
	if m == nil || m.expired == nil || n <= 0 {
		return
	}
	m.expired.WithLabelValues(normalizeLabel(source)).Add(float64(n))
}

func (m *CartMetrics) IncConverted() {
	if m == nil || m.converted == nil {
		return
	}
	m.converted.Inc()
}

// ObserveMutation records an item mutation; outcome is "ok" or the rejection
// reason.
func (m *CartMetrics) ObserveMutation(operation, outcome string) {
	if m == nil || m.mutations == nil {
		return
	}
	m.mutations.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

func (m *CartMetrics) AddMergeSkipped(operation string, n int) {
	if m == nil || m.mergeSkipped == nil || n <= 0 {
		return
	}
	m.mergeSkipped.WithLabelValues(normalizeLabel(operation)).Add(float64(n))
}

func (m *CartMetrics) IncExtension(tier string) {
	if m == nil || m.extensions == nil {
		return
	}
	m.extensions.WithLabelValues(normalizeLabel(tier)).Inc()
}
