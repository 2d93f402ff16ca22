package monitoring

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ticket-marketplace/internal/status"
	"ticket-marketplace/models"
)

var (
	purchases = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_purchases_total",
			Help: "Purchase attempts by outcome",
		},
		[]string{"outcome"},
	)

	purchaseVolume = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marketplace_purchase_volume_total",
			Help: "Sum of prices of committed purchases",
		},
	)

	listings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_listings_total",
			Help: "Tickets listed, by kind",
		},
		[]string{"kind"},
	)

	authAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_auth_attempts_total",
			Help: "Register and login attempts by outcome",
		},
		[]string{"operation", "outcome"},
	)

	notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_notifications_total",
			Help: "Notifications relayed to subscribers",
		},
		[]string{"topic", "outcome"},
	)

	ledgerSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marketplace_ledger_entries",
			Help: "Current number of stored entries per collection",
		},
		[]string{"collection"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketplace_operation_duration_seconds",
			Help:    "Duration of store operations",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"operation"},
	)
)

const (
	OutcomeSuccess          = "success"
	OutcomeRejected         = "rejected"
	OutcomeSettlementFailed = "settlement_failed"
	OutcomeError            = "error"
)

// Outcome classifies an operation result for metric labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, status.ErrSettlement):
		return OutcomeSettlementFailed
	case status.IsRejected(err):
		return OutcomeRejected
	default:
		return OutcomeError
	}
}

// StatsSource reports ledger totals for the periodic collector.
type StatsSource interface {
	Stats(ctx context.Context) (models.Stats, error)
}

// StatsFunc adapts a function to StatsSource.
type StatsFunc func(ctx context.Context) (models.Stats, error)

func (f StatsFunc) Stats(ctx context.Context) (models.Stats, error) {
	return f(ctx)
}

type Monitor struct {
	source   StatsSource
	interval time.Duration
	logger   *zap.Logger
}

func NewMonitor(source StatsSource, logger *zap.Logger) *Monitor {
	return &Monitor{
		source:   source,
		interval: 30 * time.Second,
		logger:   logger.Named("monitoring"),
	}
}

// WithInterval overrides the collection period. Non-positive values are ignored.
func (m *Monitor) WithInterval(d time.Duration) *Monitor {
	if d > 0 {
		m.interval = d
	}
	return m
}

// Run refreshes the ledger gauges until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Collect(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Collect(ctx)
		}
	}
}

func (m *Monitor) Collect(ctx context.Context) {
	if m.source == nil {
		return
	}

	stats, err := m.source.Stats(ctx)
	if err != nil {
		m.logger.Warn("collect ledger stats", zap.Error(err))
		return
	}

	ledgerSize.WithLabelValues("tickets").Set(float64(stats.TotalTickets))
	ledgerSize.WithLabelValues("available_tickets").Set(float64(stats.AvailableTickets))
	ledgerSize.WithLabelValues("transactions").Set(float64(stats.Transactions))
	ledgerSize.WithLabelValues("ownerships").Set(float64(stats.OwnershipRecords))
}

func (m *Monitor) TrackPurchase(err error, price decimal.Decimal) {
	outcome := Outcome(err)
	purchases.WithLabelValues(outcome).Inc()

	// settlement failures still committed the ticket transfer
	if outcome == OutcomeSuccess || outcome == OutcomeSettlementFailed {
		purchaseVolume.Add(price.InexactFloat64())
	}
}

func (m *Monitor) TrackListing(resale bool) {
	kind := "primary"
	if resale {
		kind = "resale"
	}
	listings.WithLabelValues(kind).Inc()
}

func (m *Monitor) TrackAuth(operation string, err error) {
	authAttempts.WithLabelValues(operation, Outcome(err)).Inc()
}

func (m *Monitor) TrackNotification(topic string, err error) {
	notifications.WithLabelValues(topic, Outcome(err)).Inc()
}

func (m *Monitor) ObserveOperation(operation string, started time.Time) {
	operationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}
