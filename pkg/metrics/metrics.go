// Package metrics はPrometheusで公開するメトリクスを定義する。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// LabelSandbox はAPNsのサンドボックス環境かどうかを表すラベル。
	LabelSandbox = "sandbox"
	// LabelOutcome は項目ごとの処理結果を表すラベル。
	LabelOutcome = "outcome"
	// LabelMethod はHTTPメソッドを表すラベル。
	LabelMethod = "method"
	// LabelRoute はginのルートパターンを表すラベル。
	LabelRoute = "route"
	// LabelStatus はHTTPステータスコードを表すラベル。
	LabelStatus = "status"
)

// 項目ごとの処理結果（LabelOutcomeの値）。
const (
	OutcomeFulfilled      = "fulfilled"
	OutcomeTransportError = "transport_error"
	OutcomeOverallError   = "overall_error"
	OutcomeNotFound       = "not_found"
	OutcomeStatusError    = "status_error"
	OutcomePayloadMissing = "payload_missing"
)

// デバイス登録バッチのメトリクス。
var (
	// WindowsDispatched は外部プロバイダーへ送信したバッチ数。
	WindowsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pushkin",
		Subsystem: "coalescer",
		Name:      "windows_dispatched_total",
		Help:      "Total number of registration windows sent to the provider",
	}, []string{LabelSandbox})

	// WindowSize は送信したバッチに含まれる項目数の分布。
	WindowSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pushkin",
		Subsystem: "coalescer",
		Name:      "window_size",
		Help:      "Number of items per dispatched window",
		Buckets:   prometheus.LinearBuckets(10, 10, 10),
	})

	// ItemsSettled は結果が確定した項目数。
	ItemsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pushkin",
		Subsystem: "coalescer",
		Name:      "items_settled_total",
		Help:      "Total number of registration items settled, by outcome",
	}, []string{LabelOutcome})

	// RegistrarLatency は一括登録呼び出しの所要時間（秒）。
	RegistrarLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pushkin",
		Subsystem: "coalescer",
		Name:      "registrar_duration_seconds",
		Help:      "Latency of bulk registration calls",
		Buckets:   prometheus.DefBuckets,
	}, []string{LabelSandbox})
)

// HTTPRequests はHTTPリクエスト数。
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pushkin",
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "Total number of HTTP requests handled",
}, []string{LabelMethod, LabelRoute, LabelStatus})
