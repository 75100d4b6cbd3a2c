package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SaveMetrics 记录编辑端保存的次数与耗时，实现 persist.Metrics。
type SaveMetrics struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewSaveMetrics registers save collectors on reg; a nil reg uses the
// default registerer.
func NewSaveMetrics(reg prometheus.Registerer) *SaveMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &SaveMetrics{
		total: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wedsite",
				Subsystem: "editor",
				Name:      "saves_total",
				Help:      "保存请求总数，按触发方式与结果划分。",
			},
			[]string{"mode", "outcome"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "wedsite",
				Subsystem: "editor",
				Name:      "save_duration_seconds",
				Help:      "保存耗时分布（秒）。",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15},
			},
			[]string{"mode"},
		),
	}
}

// ObserveSave records one finished save.
func (m *SaveMetrics) ObserveSave(mode, outcome string, d time.Duration) {
	m.total.WithLabelValues(mode, outcome).Inc()
	m.duration.WithLabelValues(mode).Observe(d.Seconds())
}

var (
	siteSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wedsite",
			Subsystem: "site",
			Name:      "saves_total",
			Help:      "服务端接收的站点保存总数。",
		},
		[]string{"result"},
	)

	sitePublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wedsite",
			Subsystem: "site",
			Name:      "publish_total",
			Help:      "站点发布任务结果总数。",
		},
		[]string{"result"},
	)

	pageCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wedsite",
			Subsystem: "site",
			Name:      "page_cache_total",
			Help:      "公开页面缓存命中情况。",
		},
		[]string{"result"},
	)
)

// SiteSaved counts a server-side save with result accepted, rejected or error.
func SiteSaved(result string) { siteSavesTotal.WithLabelValues(result).Inc() }

// SitePublished counts a publish attempt with result ok, missing or error.
func SitePublished(result string) { sitePublishTotal.WithLabelValues(result).Inc() }

// PageCache counts a public page lookup with result hit or miss.
func PageCache(result string) { pageCacheTotal.WithLabelValues(result).Inc() }
