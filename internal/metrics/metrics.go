// Package metrics содержит Prometheus-метрики анализа, кеша и перемотки.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты попытки загрузить кеш
const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheCorrupt = "corrupt"
)

// Направления перемотки
const (
	DirectionPlay   = "play"
	DirectionRewind = "rewind"
)

// Collector объединяет метрики движка. Нулевой указатель допустим:
// все методы тогда ничего не делают.
type Collector struct {
	packetsAnalyzed  *prometheus.CounterVec
	analysisDuration prometheus.Histogram
	cacheLoads       *prometheus.CounterVec
	cacheBytes       prometheus.Gauge
	loadDuration     prometheus.Histogram
	seekDuration     *prometheus.HistogramVec
	seekPackets      *prometheus.CounterVec
}

// New создаёт метрики и регистрирует их в reg.
// Если reg == nil, используется глобальный регистр Prometheus.
func New(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		packetsAnalyzed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyzer_packets_total",
			Help:      "Пакеты записи, обработанные анализатором.",
		}, []string{"kind"}),
		analysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Длительность построения кеша.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		cacheLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_loads_total",
			Help:      "Попытки загрузить готовый кеш по результату.",
		}, []string{"result"}),
		cacheBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_bytes",
			Help:      "Размер загруженного потока данных кеша.",
		}),
		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Длительность Load: анализ и чтение кеша.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		seekDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "seek_duration_seconds",
			Help:      "Длительность перемотки.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}, []string{"direction"}),
		seekPackets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "seek_packets_total",
			Help:      "Синтетические пакеты, отправленные при перемотке.",
		}, []string{"direction"}),
	}
	reg.MustRegister(
		c.packetsAnalyzed, c.analysisDuration,
		c.cacheLoads, c.cacheBytes, c.loadDuration,
		c.seekDuration, c.seekPackets,
	)
	return c
}

// PacketAnalyzed учитывает пакет записи данного типа
func (c *Collector) PacketAnalyzed(kind string) {
	if c == nil {
		return
	}
	c.packetsAnalyzed.WithLabelValues(kind).Inc()
}

// AnalysisFinished записывает длительность анализа
func (c *Collector) AnalysisFinished(d time.Duration) {
	if c == nil {
		return
	}
	c.analysisDuration.Observe(d.Seconds())
}

// CacheLoad учитывает результат попытки загрузить кеш
func (c *Collector) CacheLoad(result string) {
	if c == nil {
		return
	}
	c.cacheLoads.WithLabelValues(result).Inc()
}

// CacheSize выставляет размер загруженного кеша; 0 после Release
func (c *Collector) CacheSize(bytes int) {
	if c == nil {
		return
	}
	c.cacheBytes.Set(float64(bytes))
}

// LoadFinished записывает длительность Load
func (c *Collector) LoadFinished(d time.Duration) {
	if c == nil {
		return
	}
	c.loadDuration.Observe(d.Seconds())
}

// Seek записывает одну перемотку
func (c *Collector) Seek(direction string, d time.Duration, packets int) {
	if c == nil {
		return
	}
	c.seekDuration.WithLabelValues(direction).Observe(d.Seconds())
	c.seekPackets.WithLabelValues(direction).Add(float64(packets))
}
