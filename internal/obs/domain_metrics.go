package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// DealActivationTotal counts deal activation outcomes.
	DealActivationTotal *prometheus.CounterVec
	// DealRemovedTotal counts deal removals.
	DealRemovedTotal prometheus.Counter
	// DiscountAppliedTotal counts discounts applied during receipt calculation, by rule kind.
	DiscountAppliedTotal *prometheus.CounterVec
	// ReceiptCalculatedTotal counts receipt calculation outcomes.
	ReceiptCalculatedTotal *prometheus.CounterVec
	// ReceiptAmount records the final receipt totals in minor currency units.
	ReceiptAmount prometheus.Histogram
	// BasketItemAddedTotal counts basket item insertions.
	BasketItemAddedTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		DealActivationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deal_activation_total",
			Help:      "Count of deal activation outcomes.",
		}, []string{"result"})
		DealRemovedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deal_removed_total",
			Help:      "Count of removed discount deals.",
		})
		DiscountAppliedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_applied_total",
			Help:      "Count of discounts applied to receipt lines, by rule kind.",
		}, []string{"kind"})
		ReceiptCalculatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receipt_calculated_total",
			Help:      "Count of receipt calculation outcomes.",
		}, []string{"result"})
		ReceiptAmount = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "receipt_amount_minor_units",
			Help:      "Final receipt totals in minor currency units.",
			Buckets:   prometheus.ExponentialBuckets(100, 4, 10),
		})
		BasketItemAddedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "basket_item_added_total",
			Help:      "Count of items added to baskets.",
		})

		mustRegisterCollector(reg, DealActivationTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				DealActivationTotal = v
			}
		})
		mustRegisterCollector(reg, DealRemovedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				DealRemovedTotal = v
			}
		})
		mustRegisterCollector(reg, DiscountAppliedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				DiscountAppliedTotal = v
			}
		})
		mustRegisterCollector(reg, ReceiptCalculatedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ReceiptCalculatedTotal = v
			}
		})
		mustRegisterCollector(reg, ReceiptAmount, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				ReceiptAmount = v
			}
		})
		mustRegisterCollector(reg, BasketItemAddedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				BasketItemAddedTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
