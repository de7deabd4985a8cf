package stats

import (
	"github.com/zonecheck/zonecheck/evt"
	"github.com/zonecheck/zonecheck/log"
)

// Collector subscribes to the validation events and feeds the aggregators.
// One collector instance per process is enough; creating it twice doubles
// the counts.
type Collector struct {
	statuses     *Aggregator
	domains      *Aggregator
	sources      *Aggregator
	daneStatuses *Aggregator
}

// NewCollector creates a collector and wires it to the event bus.
func NewCollector() *Collector {
	c := &Collector{
		statuses:     NewAggregator("statuses"),
		domains:      NewAggregator("domains"),
		sources:      NewAggregator("sources"),
		daneStatuses: NewAggregator("daneStatuses"),
	}

	logger := log.PrefixedLog("stats")

	if err := evt.Bus().Subscribe(evt.ValidationFinished, c.onValidationFinished); err != nil {
		logger.Warnf("can't subscribe to validation events: %v", err)
	}

	if err := evt.Bus().Subscribe(evt.ValidationDANEChecked, c.onDANEChecked); err != nil {
		logger.Warnf("can't subscribe to DANE events: %v", err)
	}

	return c
}

// Close detaches the collector from the event bus.
func (c *Collector) Close() {
	_ = evt.Bus().Unsubscribe(evt.ValidationFinished, c.onValidationFinished)
	_ = evt.Bus().Unsubscribe(evt.ValidationDANEChecked, c.onDANEChecked)
}

func (c *Collector) onValidationFinished(domain, status, source string) {
	c.domains.Put(domain)
	c.statuses.Put(status)
	c.sources.Put(source)
}

func (c *Collector) onDANEChecked(_, daneStatus string, _ int) {
	c.daneStatuses.Put(daneStatus)
}

// Statuses returns the per-status counts of the last 24 hours.
func (c *Collector) Statuses() map[string]int {
	return c.statuses.AggregateResult()
}

// Domains returns the most validated domains of the last 24 hours.
func (c *Collector) Domains() map[string]int {
	return c.domains.AggregateResult()
}

// Sources returns the per-source counts of the last 24 hours.
func (c *Collector) Sources() map[string]int {
	return c.sources.AggregateResult()
}

// DaneStatuses returns the per-DANE-status counts of the last 24 hours.
func (c *Collector) DaneStatuses() map[string]int {
	return c.daneStatuses.AggregateResult()
}
