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
	metricPrefix = "gridmarket_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	operationTotal   *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec

	purchaseTotal     *prometheus.CounterVec
	capacitySoldTotal prometheus.Counter
	valueSettledTotal *prometheus.CounterVec

	eventsDispatched *prometheus.CounterVec

	stationsRegistered prometheus.Gauge
)

// Init registers metrics and, when a database is supplied, a background
// sampler for the station-count gauge.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		operationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "operations_total",
				Help: "Total state-transition operations by name and result",
			},
			[]string{"operation", "result"},
		)
		operationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "operation_latency_seconds",
				Help:    "Operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		)
		purchaseTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "purchases_total",
				Help: "Capacity purchases by result",
			},
			[]string{"result"},
		)
		capacitySoldTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "capacity_sold_total",
				Help: "Units of capacity sold",
			},
		)
		valueSettledTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "value_settled_total",
				Help: "Value settled by beneficiary kind",
			},
			[]string{"beneficiary"},
		)
		eventsDispatched = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "events_dispatched_total",
				Help: "Outbox events dispatched by result",
			},
			[]string{"result"},
		)
		stationsRegistered = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "stations_registered",
				Help: "Stations currently in the registry",
			},
		)

		prometheus.MustRegister(
			operationTotal,
			operationLatency,
			purchaseTotal,
			capacitySoldTotal,
			valueSettledTotal,
			eventsDispatched,
			stationsRegistered,
		)

		if db != nil {
			go sampleStationCount(db, logger)
		}
	})
}

func sampleStationCount(db *sql.DB, logger *log.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		var count int64
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stations`).Scan(&count)
		cancel()
		if err != nil {
			if logger != nil {
				logger.Printf("metrics: station count sample error: %v", err)
			}
			continue
		}
		SetStationsRegistered(count)
	}
}

// RecordOperation counts an operation outcome and its latency.
func RecordOperation(operation string, err error, elapsed time.Duration) {
	if operationTotal == nil {
		return
	}
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	operationTotal.WithLabelValues(operation, result).Inc()
	operationLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RecordPurchase counts a purchase outcome.
func RecordPurchase(err error) {
	if purchaseTotal == nil {
		return
	}
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	purchaseTotal.WithLabelValues(result).Inc()
}

// AddCapacitySold accumulates sold units.
func AddCapacitySold(amount int64) {
	if capacitySoldTotal == nil || amount <= 0 {
		return
	}
	capacitySoldTotal.Add(float64(amount))
}

// AddValueSettled accumulates settled value per beneficiary kind
// (owner, administrator, refund).
func AddValueSettled(beneficiary string, amount int64) {
	if valueSettledTotal == nil || amount < 0 {
		return
	}
	valueSettledTotal.WithLabelValues(beneficiary).Add(float64(amount))
}

// RecordEventDispatch counts an outbox delivery outcome.
func RecordEventDispatch(err error) {
	if eventsDispatched == nil {
		return
	}
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	eventsDispatched.WithLabelValues(result).Inc()
}

// SetStationsRegistered sets the registry size gauge.
func SetStationsRegistered(count int64) {
	if stationsRegistered == nil {
		return
	}
	stationsRegistered.Set(float64(count))
}
