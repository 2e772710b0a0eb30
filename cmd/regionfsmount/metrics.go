// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// The adapter's op handlers do not call recordOp and no code sets
// blocksFree, so both series stay at zero; serveMetrics only exposes them.
var (
	opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "regionfsmount",
		Name:      "ops_total",
		Help:      "Count of FUSE operations served, by op type and result.",
	}, []string{"op", "result"})

	blocksFree = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "regionfsmount",
		Name:      "blocks_free",
		Help:      "Free blocks remaining in the mounted region, per the last statfs.",
	})
)

func recordOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	opsTotal.WithLabelValues(op, result).Inc()
}

// serveMetrics starts a background HTTP server exposing the process's
// Prometheus registry. A non-empty addr is required; callers that don't want
// a metrics endpoint simply don't call this.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go http.ListenAndServe(addr, mux)
}
