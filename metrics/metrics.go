// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

// Package metrics exports AutoCirculate channel status to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TheCacophonyProject/autocirculate/driver"
)

const namespace = "ntv2"

// StatusReader is the part of autocirculate.Card the collector needs.
type StatusReader interface {
	Info() driver.Info
	Status(ctx context.Context, ch driver.Channel) (*driver.Status, error)
}

var labels = []string{"device", "channel"}

var (
	stateDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "autocirculate", "state"),
		"AutoCirculate state of the channel (0 disabled, 5 running).",
		labels, nil)
	bufferLevelDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "autocirculate", "buffer_level"),
		"Frames buffered in the channel's frame band.",
		labels, nil)
	processedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "autocirculate", "frames_processed_total"),
		"Frames captured or played since the channel was started.",
		labels, nil)
	droppedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "autocirculate", "frames_dropped_total"),
		"Frames dropped since the channel was started.",
		labels, nil)
)

// Collector reads the status of a fixed set of channels on each scrape.
type Collector struct {
	card     StatusReader
	channels []driver.Channel
	timeout  time.Duration

	scrapeErrors prometheus.Counter
}

func NewCollector(card StatusReader, channels []driver.Channel) *Collector {
	return &Collector{
		card:     card,
		channels: channels,
		timeout:  time.Second,
		scrapeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autocirculate",
			Name:      "status_errors_total",
			Help:      "Status reads that failed during a scrape.",
		}),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- stateDesc
	ch <- bufferLevelDesc
	ch <- processedDesc
	ch <- droppedDesc
	c.scrapeErrors.Describe(ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	device := c.card.Info().Name
	for _, channel := range c.channels {
		st, err := c.card.Status(ctx, channel)
		if err != nil {
			c.scrapeErrors.Inc()
			continue
		}
		lv := []string{device, channel.String()}
		ch <- prometheus.MustNewConstMetric(stateDesc, prometheus.GaugeValue, float64(st.State), lv...)
		ch <- prometheus.MustNewConstMetric(bufferLevelDesc, prometheus.GaugeValue, float64(st.BufferLevel), lv...)
		ch <- prometheus.MustNewConstMetric(processedDesc, prometheus.CounterValue, float64(st.FramesProcessed), lv...)
		ch <- prometheus.MustNewConstMetric(droppedDesc, prometheus.CounterValue, float64(st.FramesDropped), lv...)
	}
	c.scrapeErrors.Collect(ch)
}

// Handler returns an HTTP handler serving the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
