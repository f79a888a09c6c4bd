package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// WriteTextfile writes the registry in node_exporter textfile collector
// format. The file is written atomically.
func (pm *PrometheusMetrics) WriteTextfile(path string) error {
	pm.UpdateSystemMetrics()
	if err := prometheus.WriteToTextfile(path, pm.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
