package vector

import (
	"fmt"
	"math"
	"strings"
)

// Metric is the distance function of an index. It is fixed per index instance.
type Metric uint32

const (
	// MetricL2 ranks by squared Euclidean distance.
	MetricL2 Metric = iota
	// MetricInnerProduct ranks by 1 - dot(a, b); for unit vectors this is the cosine distance.
	MetricInnerProduct
)

func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "l2"
	case MetricInnerProduct:
		return "ip"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(m))
	}
}

// ParseMetric parses a metric name. FAISS index type names are accepted for compatibility
// with existing configuration files.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "l2", "euclidean", "indexflatl2", "":
		return MetricL2, nil
	case "ip", "inner_product", "innerproduct", "dot", "indexflatip":
		return MetricInnerProduct, nil
	default:
		return 0, fmt.Errorf("unknown metric: %s (supported: l2, ip)", s)
	}
}

func (m Metric) valid() bool {
	return m == MetricL2 || m == MetricInnerProduct
}

// Distance returns the distance between a and b under m. Both must have the same length.
// Accumulation is in float64 in index order so the result is deterministic.
func (m Metric) Distance(a, b []float32) float32 {
	switch m {
	case MetricInnerProduct:
		return float32(1 - dot(a, b))
	default:
		return float32(squaredL2(a, b))
	}
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func squaredL2(a, b []float32) float64 {
	var s float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		s += d * d
	}
	return s
}

// sortKey maps NaN to +Inf so ordering stays a strict weak order.
func sortKey(d float32) float32 {
	if math.IsNaN(float64(d)) {
		return float32(math.Inf(1))
	}
	return d
}
