package metrics

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "aquasplit_"

	resultSuccess = "success"
	resultError   = "error"
)

// Result labels shared by the application services.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)

var (
	registerOnce sync.Once

	splitTotal   *prometheus.CounterVec
	splitLatency *prometheus.HistogramVec

	trueupTotal   *prometheus.CounterVec
	trueupLatency *prometheus.HistogramVec

	historyExportTotal   *prometheus.CounterVec
	historyExportLatency *prometheus.HistogramVec

	periodsSaved prometheus.Counter
	trueupsSaved prometheus.Counter

	mismatchSeverity *prometheus.CounterVec
)

// Init registers calculation metrics and, when a DB is configured, gauges
// over the stored history.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		splitTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "split_calculations_total",
				Help: "Total bill split calculations by result",
			},
			[]string{"result"},
		)
		splitLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "split_calculation_latency_seconds",
				Help:    "Bill split calculation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		trueupTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "trueup_calculations_total",
				Help: "Total true-up settlements by result",
			},
			[]string{"result"},
		)
		trueupLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "trueup_calculation_latency_seconds",
				Help:    "True-up settlement latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		historyExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "history_export_total",
				Help: "Total history exports by format and result",
			},
			[]string{"format", "result"},
		)
		historyExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "history_export_latency_seconds",
				Help:    "History export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		periodsSaved = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "periods_saved_total",
				Help: "Total billing periods appended to history",
			},
		)
		trueupsSaved = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "trueups_saved_total",
				Help: "Total true-ups appended to history",
			},
		)

		mismatchSeverity = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "mismatch_classifications_total",
				Help: "Total mismatch classifications by severity",
			},
			[]string{"severity"},
		)

		prometheus.MustRegister(
			splitTotal,
			splitLatency,
			trueupTotal,
			trueupLatency,
			historyExportTotal,
			historyExportLatency,
			periodsSaved,
			trueupsSaved,
			mismatchSeverity,
		)

		if db != nil {
			registerHistoryGauges(db, logger)
		}
	})
}

// ObserveSplit records one split calculation.
func ObserveSplit(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if splitTotal != nil {
		splitTotal.WithLabelValues(result).Inc()
	}
	if splitLatency != nil {
		splitLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveTrueUp records one true-up settlement.
func ObserveTrueUp(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if trueupTotal != nil {
		trueupTotal.WithLabelValues(result).Inc()
	}
	if trueupLatency != nil {
		trueupLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveHistoryExport records one export by format.
func ObserveHistoryExport(format, result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if historyExportTotal != nil {
		historyExportTotal.WithLabelValues(format, result).Inc()
	}
	if historyExportLatency != nil {
		historyExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// IncPeriodSaved counts one appended period.
func IncPeriodSaved() {
	if periodsSaved != nil {
		periodsSaved.Inc()
	}
}

// IncTrueUpSaved counts one appended true-up.
func IncTrueUpSaved() {
	if trueupsSaved != nil {
		trueupsSaved.Inc()
	}
}

// IncMismatchSeverity counts one mismatch classification.
func IncMismatchSeverity(severity string) {
	if mismatchSeverity != nil && severity != "" {
		mismatchSeverity.WithLabelValues(severity).Inc()
	}
}

type historyCollector struct {
	db      *sql.DB
	logger  *log.Logger
	periods *prometheus.Desc
	trueups *prometheus.Desc
}

func registerHistoryGauges(db *sql.DB, logger *log.Logger) {
	collector := &historyCollector{
		db:     db,
		logger: logger,
		periods: prometheus.NewDesc(
			metricPrefix+"history_periods",
			"Number of billing periods in the history store",
			nil, nil,
		),
		trueups: prometheus.NewDesc(
			metricPrefix+"history_trueups",
			"Number of true-ups in the history store",
			nil, nil,
		),
	}
	prometheus.MustRegister(collector)
}

// Describe implements prometheus.Collector.
func (c *historyCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.periods
	ch <- c.trueups
}

// Collect implements prometheus.Collector.
func (c *historyCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, item := range []struct {
		desc  *prometheus.Desc
		query string
	}{
		{c.periods, "SELECT COUNT(*) FROM billing_periods"},
		{c.trueups, "SELECT COUNT(*) FROM billing_trueups"},
	} {
		var count float64
		if err := c.db.QueryRowContext(ctx, item.query).Scan(&count); err != nil {
			if c.logger != nil {
				c.logger.Printf("history gauge query error: %v", err)
			}
			continue
		}
		ch <- prometheus.MustNewConstMetric(item.desc, prometheus.GaugeValue, count)
	}
}
