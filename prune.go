package main

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/example/blogauth/internal/store"
)

// Pruner periodically drops ledger entries whose token has expired. Those
// tokens already fail verification, so their entries are dead weight.
type Pruner struct {
	ledger  store.Ledger
	log     logrus.FieldLogger
	metrics *Metrics
	now     func() time.Time
	cron    *cron.Cron
}

func NewPruner(ledger store.Ledger, schedule string, log logrus.FieldLogger, metrics *Metrics) (*Pruner, error) {
	p := &Pruner{
		ledger:  ledger,
		log:     log,
		metrics: metrics,
		now:     time.Now,
		cron:    cron.New(),
	}
	if _, err := p.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		_, _ = p.RunOnce(ctx)
	}); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	return p, nil
}

// RunOnce prunes immediately and reports how many entries were removed.
func (p *Pruner) RunOnce(ctx context.Context) (int64, error) {
	n, err := p.ledger.PruneExpired(ctx, p.now())
	if err != nil {
		p.metrics.LedgerPruneErrors.Inc()
		p.log.WithError(err).Error("ledger prune failed")
		return 0, err
	}
	p.metrics.LedgerPrunedTotal.Add(float64(n))
	if n > 0 {
		p.log.WithField("removed", n).Info("ledger pruned")
	}
	return n, nil
}

func (p *Pruner) Start() { p.cron.Start() }

// Stop halts the schedule and waits for a running prune to finish.
func (p *Pruner) Stop() {
	<-p.cron.Stop().Done()
}
