package metrics

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// WritePrometheus writes the collector's metrics to w in the Prometheus text
// exposition format.
func WritePrometheus(w io.Writer, collector *Collector) error {
	families, err := collector.registry.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encoding %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// WriteTextfile atomically writes the collector's metrics to path for the
// node exporter's textfile collector.
func WriteTextfile(path string, collector *Collector) error {
	if err := prometheus.WriteToTextfile(path, collector.registry); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
