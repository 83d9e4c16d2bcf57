package types

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Measurement is one collected metric value ready to be handed to the sinks.
type Measurement struct {
	// Name is the exported metric name (Prometheus naming rules).
	Name string `json:"name" msgpack:"name"`

	// Description is the help text shown next to the metric.
	Description string `json:"description,omitempty" msgpack:"description,omitempty"`

	Value     float64           `json:"value" msgpack:"value"`
	Labels    map[string]string `json:"labels,omitempty" msgpack:"labels,omitempty"`
	Timestamp time.Time         `json:"timestamp" msgpack:"timestamp"`
}

// LabelNames returns the label names in sorted order.
func (m Measurement) LabelNames() []string {
	names := make([]string, 0, len(m.Labels))
	for k := range m.Labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Key returns a canonical series identifier: name{k1="v1",k2="v2"} with
// labels sorted by name. Two measurements of the same series share a key.
func (m Measurement) Key() string {
	var b strings.Builder
	b.WriteString(m.Name)
	b.WriteByte('{')
	for i, k := range m.LabelNames() {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strconv.Quote(m.Labels[k]))
	}
	b.WriteByte('}')
	return b.String()
}
