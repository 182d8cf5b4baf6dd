package service

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// SettlementWorker periodically closes expired markets and settles resolved
// ones. Each pass is safe to run concurrently with another instance: market
// row locks serialize settlement and a losing racer skips the market.
type SettlementWorker struct {
	markets    MarketService
	settlement SettlementService
	interval   time.Duration
}

// NewSettlementWorker creates a new settlement worker
func NewSettlementWorker(markets MarketService, settlement SettlementService, interval time.Duration) *SettlementWorker {
	return &SettlementWorker{
		markets:    markets,
		settlement: settlement,
		interval:   interval,
	}
}

// Start launches the worker goroutine and returns a cleanup function to
// stop it gracefully.
func (w *SettlementWorker) Start(ctx context.Context) func() {
	ticker := time.NewTicker(w.interval)
	stopChan := make(chan struct{})

	runPass := func() {
		closed, err := w.markets.CloseExpired(ctx)
		if err != nil {
			log.WithError(err).Error("Failed to close expired markets")
		} else if closed > 0 {
			log.WithField("closed", closed).Debug("Settlement pass closed expired markets")
		}

		settled, err := w.settlement.SettleDue(ctx)
		if err != nil {
			log.WithError(err).Error("Failed to settle due markets")
		} else if settled > 0 {
			log.WithField("settled", settled).Info("Settlement pass complete")
		}
	}

	go func() {
		log.Info("Settlement worker started")

		// Run immediately on startup
		runPass()

		for {
			select {
			case <-ctx.Done():
				log.Info("Settlement worker shutting down (context cancelled)...")
				return
			case <-stopChan:
				log.Info("Settlement worker shutting down (stop requested)...")
				return
			case <-ticker.C:
				runPass()
			}
		}
	}()

	return func() {
		ticker.Stop()
		close(stopChan)
	}
}
