// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// zeusNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	zeusNamespace = "zeus"

	// httpCompressSubsystem 为压缩中间件的指标子系统名。
	httpCompressSubsystem = "httpcompress"

	// 以下为当前使用的通用标签名。
	codecLabelName  = "codec"
	actionLabelName = "action"

	// action 标签的取值。
	ActionCompress    = "compress"
	ActionPassthrough = "passthrough"
)

var (
	// sizeBuckets 为数据大小的桶划分，单位为字节。
	sizeBuckets = []float64{256, 860, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 67108864}

	// ratioBuckets 为压缩比（输出/输入）的桶划分。
	ratioBuckets = []float64{0.05, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0, 1.2}

	ResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: zeusNamespace,
			Subsystem: httpCompressSubsystem,
			Name:      "responses_total",
			Help:      "number of responses handled, by action and codec",
		}, []string{actionLabelName, codecLabelName})

	BodyBytesIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: zeusNamespace,
			Subsystem: httpCompressSubsystem,
			Name:      "body_bytes_in_total",
			Help:      "uncompressed body bytes consumed from handlers",
		}, []string{codecLabelName})

	BodyBytesOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: zeusNamespace,
			Subsystem: httpCompressSubsystem,
			Name:      "body_bytes_out_total",
			Help:      "body bytes written to the transport",
		}, []string{codecLabelName})

	CompressionRatio = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: zeusNamespace,
			Subsystem: httpCompressSubsystem,
			Name:      "compression_ratio",
			Help:      "output/input size ratio of compressed responses",
			Buckets:   ratioBuckets,
		}, []string{codecLabelName})

	BodySize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: zeusNamespace,
			Subsystem: httpCompressSubsystem,
			Name:      "body_size_bytes",
			Help:      "original body size of handled responses",
			Buckets:   sizeBuckets,
		}, []string{actionLabelName})

	ForcedFlushes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: zeusNamespace,
			Subsystem: httpCompressSubsystem,
			Name:      "forced_flushes_total",
			Help:      "number of flushes forced by streaming content rules",
		})

	TransformFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: zeusNamespace,
			Subsystem: httpCompressSubsystem,
			Name:      "transform_failures_total",
			Help:      "number of responses aborted by codec or upstream errors",
		}, []string{codecLabelName})
)

var registerOnce sync.Once

// Register 将压缩中间件的全部指标注册到给定 Registerer。
// 多次调用时仅第一次生效。
func Register(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(ResponsesTotal)
		r.MustRegister(BodyBytesIn)
		r.MustRegister(BodyBytesOut)
		r.MustRegister(CompressionRatio)
		r.MustRegister(BodySize)
		r.MustRegister(ForcedFlushes)
		r.MustRegister(TransformFailures)
	})
}

var registerBufferPoolOnce sync.Once

// RegisterBufferPool 把缓冲池的命中统计暴露为两个 Gauge。
// stats 返回 (hits, misses)，多次调用时仅第一次生效。
func RegisterBufferPool(r prometheus.Registerer, stats func() (int64, int64)) {
	registerBufferPoolOnce.Do(func() {
		r.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: zeusNamespace,
				Subsystem: httpCompressSubsystem,
				Name:      "buffer_pool_hits",
				Help:      "cumulative buffer pool hits",
			}, func() float64 {
				hits, _ := stats()
				return float64(hits)
			}))
		r.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: zeusNamespace,
				Subsystem: httpCompressSubsystem,
				Name:      "buffer_pool_misses",
				Help:      "cumulative buffer pool misses",
			}, func() float64 {
				_, misses := stats()
				return float64(misses)
			}))
	})
}
