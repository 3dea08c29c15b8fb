// Copyright 2025 The qsync Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics exports synchronizer activity to Prometheus.
//
// A Collector holds named sources, usually *aqs.Synchronizer values, and
// reads their counters on every scrape. Nothing is recorded between scrapes,
// so registering a synchronizer costs nothing on its acquire paths.
//
//	c := metrics.NewCollector()
//	c.Register("orders", mu.Synchronizer())
//	prometheus.MustRegister(c)
package metrics

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/kolkov/qsync/internal/aqs"
)

const namespace = "qsync"

// Source is anything that reports synchronizer counters.
type Source interface {
	Stats() aqs.Stats
	QueueLength() int
}

// Collector is a prometheus.Collector over a set of named sources.
type Collector struct {
	// sources maps synchronizer names to their Source.
	// Key: string, Value: Source.
	sources sync.Map

	queueLength   *prometheus.Desc
	acquires      *prometheus.Desc
	parks         *prometheus.Desc
	cancellations *prometheus.Desc
	signals       *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	labels := []string{"synchronizer"}
	return &Collector{
		queueLength: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "queue_length"),
			"Estimated number of goroutines queued to acquire.",
			labels, nil),
		acquires: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "acquires_total"),
			"Successful acquires by path. Fast acquires are sampled.",
			[]string{"synchronizer", "path"}, nil),
		parks: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "parks_total"),
			"Times a queued goroutine parked.",
			labels, nil),
		cancellations: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "cancellations_total"),
			"Queued acquires abandoned, by cause.",
			[]string{"synchronizer", "cause"}, nil),
		signals: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "signals_total"),
			"Condition signals that moved a waiter to the acquire queue.",
			labels, nil),
	}
}

// Register adds src under name, replacing any previous source of that name.
func (c *Collector) Register(name string, src Source) {
	c.sources.Store(name, src)
}

// GetOrCreate returns the source registered under name, registering the
// result of create if there is none. create may run and be discarded when
// two callers race on a new name.
func (c *Collector) GetOrCreate(name string, create func() Source) Source {
	if val, ok := c.sources.Load(name); ok {
		return val.(Source)
	}
	val, _ := c.sources.LoadOrStore(name, create())
	return val.(Source)
}

// Unregister drops the source registered under name.
func (c *Collector) Unregister(name string) {
	c.sources.Delete(name)
}

// Names returns the registered names in sorted order.
func (c *Collector) Names() []string {
	var names []string
	c.sources.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	return names
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queueLength
	ch <- c.acquires
	ch <- c.parks
	ch <- c.cancellations
	ch <- c.signals
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.sources.Range(func(key, value any) bool {
		name := key.(string)
		src := value.(Source)
		st := src.Stats()

		ch <- prometheus.MustNewConstMetric(c.queueLength, prometheus.GaugeValue,
			float64(src.QueueLength()), name)
		ch <- prometheus.MustNewConstMetric(c.acquires, prometheus.CounterValue,
			float64(st.FastAcquires), name, "fast")
		ch <- prometheus.MustNewConstMetric(c.acquires, prometheus.CounterValue,
			float64(st.SlowAcquires), name, "slow")
		ch <- prometheus.MustNewConstMetric(c.parks, prometheus.CounterValue,
			float64(st.Parks), name)

		other := st.Cancellations - min(st.Cancellations, st.Timeouts+st.Interrupts)
		ch <- prometheus.MustNewConstMetric(c.cancellations, prometheus.CounterValue,
			float64(st.Timeouts), name, "timeout")
		ch <- prometheus.MustNewConstMetric(c.cancellations, prometheus.CounterValue,
			float64(st.Interrupts), name, "interrupt")
		ch <- prometheus.MustNewConstMetric(c.cancellations, prometheus.CounterValue,
			float64(other), name, "error")

		ch <- prometheus.MustNewConstMetric(c.signals, prometheus.CounterValue,
			float64(st.Signals), name)
		return true
	})
}

// WriteText gathers g and writes it in the Prometheus text exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	mfs, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
