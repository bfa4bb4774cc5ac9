package usage

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/samcharles93/memspace/internal/logger"
)

// Collector exports a fresh Snapshot on every scrape.
type Collector struct {
	src   Source
	log   logger.Logger
	descs [NumFields]*prometheus.Desc
}

func NewCollector(src Source, log logger.Logger, constLabels prometheus.Labels) *Collector {
	if log == nil {
		log = logger.Nop()
	}
	c := &Collector{src: src, log: log}
	for f := Field(0); f < NumFields; f++ {
		c.descs[f] = prometheus.NewDesc(
			prometheus.BuildFQName("memspace", "", f.String()+"_bytes"),
			"Memory usage field "+f.String()+" in bytes.",
			nil, constLabels,
		)
	}
	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s, err := Collect(c.src)
	if err != nil {
		c.log.Error("failed to collect memory usage", "error", err)
		return
	}
	for f, d := range c.descs {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, s[f])
	}
}
