package metrics

import (
	"fmt"
	"io"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// DumpText writes every gathered proc_warden metric family to w in the
// Prometheus text exposition format. Used for the end-of-run report
// when no scraper ever saw the process-lifetime metrics.
func (c *Collector) DumpText(w io.Writer) error {
	families, err := c.gatherer.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	encoder := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "proc_warden_") {
			continue
		}
		if err := encoder.Encode(mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}

	return nil
}

// CounterValue walks the gathered families and returns the summed value
// of the named counter across all label combinations.
func (c *Collector) CounterValue(name string) (float64, bool) {
	families, err := c.gatherer.Gather()
	if err != nil {
		return 0, false
	}

	for _, mf := range families {
		if mf.GetName() != name || mf.GetType() != dto.MetricType_COUNTER {
			continue
		}
		total := float64(0)
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		return total, true
	}

	return 0, false
}
