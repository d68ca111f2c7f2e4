/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package table

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes a Pool's usage as prometheus gauges: current in-use count
// and the high-water mark, labeled by the pool's name. A socket.Stack keeps
// a single Pool, named "stack", shared by both address families.
type Metrics struct {
	pool *Pool
	name string

	curUsed prometheus.GaugeFunc
	maxUsed prometheus.GaugeFunc
	size    prometheus.GaugeFunc
}

// NewMetrics wraps pool with gauges registered under the given name label.
// The gauges read the pool live on every scrape; there is no polling loop.
func NewMetrics(name string, pool *Pool) *Metrics {
	m := &Metrics{pool: pool, name: name}

	m.curUsed = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   "netsock",
		Subsystem:   "socket_pool",
		Name:        "current_used",
		Help:        "Number of socket records currently allocated.",
		ConstLabels: prometheus.Labels{"pool": name},
	}, func() float64 { return float64(pool.Stats().CurUsed) })

	m.maxUsed = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   "netsock",
		Subsystem:   "socket_pool",
		Name:        "max_used",
		Help:        "High-water mark of socket records allocated since last reset.",
		ConstLabels: prometheus.Labels{"pool": name},
	}, func() float64 { return float64(pool.Stats().MaxUsed) })

	m.size = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   "netsock",
		Subsystem:   "socket_pool",
		Name:        "size",
		Help:        "Fixed capacity of the socket pool.",
		ConstLabels: prometheus.Labels{"pool": name},
	}, func() float64 { return float64(pool.Stats().Size) })

	return m
}

// Collectors returns the gauges for registration against a
// prometheus.Registerer.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.curUsed, m.maxUsed, m.size}
}
