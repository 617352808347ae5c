// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "smartdb"

// Collector receives the operational events of a store.
type Collector interface {
	CacheHit(kind string)
	CacheMiss(kind string)
	CacheEviction(kind string)
	CacheSize(kind string, size int)
	BlockCommitted(height int64, persist time.Duration)
	BlockRolledBack(height int64)
	HistoryHeights(count int)
}

// PrometheusCollector exports the events of a store as prometheus metrics.
type PrometheusCollector struct {
	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	cacheEvictions *prometheus.CounterVec
	cacheSize      *prometheus.GaugeVec
	blocks         prometheus.Counter
	rollbacks      prometheus.Counter
	height         prometheus.Gauge
	persistTime    prometheus.Histogram
	historyHeights prometheus.Gauge
}

var _ Collector = (*PrometheusCollector)(nil)

func NewPrometheusCollector(registerer prometheus.Registerer) (*PrometheusCollector, error) {
	res := &PrometheusCollector{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "total number of entity lookups served by the cache",
		}, []string{"kind"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "total number of entity lookups not found in the cache",
		}, []string{"kind"}),
		cacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "total number of entities evicted when a kind reached its capacity",
		}, []string{"kind"}),
		cacheSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entities",
			Help:      "number of resident entities",
		}, []string{"kind"}),
		blocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "committed_blocks_total",
			Help:      "total number of committed blocks",
		}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollbacks_total",
			Help:      "total number of rollbacks to a previous height",
		}),
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "block_height",
			Help:      "height of the last committed block",
		}),
		persistTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "persist_duration_seconds",
			Help:      "time spent writing a committed block to durable storage",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		historyHeights: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_heights",
			Help:      "number of block heights whose changes are held in memory",
		}),
	}
	for _, collector := range []prometheus.Collector{
		res.cacheHits, res.cacheMisses, res.cacheEvictions, res.cacheSize,
		res.blocks, res.rollbacks, res.height, res.persistTime, res.historyHeights,
	} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (c *PrometheusCollector) CacheHit(kind string) {
	c.cacheHits.WithLabelValues(kind).Inc()
}

func (c *PrometheusCollector) CacheMiss(kind string) {
	c.cacheMisses.WithLabelValues(kind).Inc()
}

func (c *PrometheusCollector) CacheEviction(kind string) {
	c.cacheEvictions.WithLabelValues(kind).Inc()
}

func (c *PrometheusCollector) CacheSize(kind string, size int) {
	c.cacheSize.WithLabelValues(kind).Set(float64(size))
}

func (c *PrometheusCollector) BlockCommitted(height int64, persist time.Duration) {
	c.blocks.Inc()
	c.height.Set(float64(height))
	c.persistTime.Observe(persist.Seconds())
}

func (c *PrometheusCollector) BlockRolledBack(height int64) {
	c.rollbacks.Inc()
	c.height.Set(float64(height))
}

func (c *PrometheusCollector) HistoryHeights(count int) {
	c.historyHeights.Set(float64(count))
}
