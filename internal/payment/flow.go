package payment

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"zapvoice/internal/ledger"
	"zapvoice/internal/logging"
	"zapvoice/internal/notifications"
	"zapvoice/internal/services"
	"zapvoice/internal/services/lnurl"
)

// EventKind distinguishes progress events.
type EventKind string

const (
	EventInvoiceCreated EventKind = "invoiceCreated"
	EventSettled        EventKind = "settled"
)

// ProgressEvent is one step of a pledge flow.
type ProgressEvent struct {
	Kind    EventKind
	Invoice lnurl.Invoice
}

// Flow is a running pledge. Events yields invoiceCreated, then settled at most
// once, then closes.
type Flow struct {
	ID      string
	Invoice lnurl.Invoice

	events chan ProgressEvent
	err    error
}

func newFlow(id string, invoice lnurl.Invoice) *Flow {
	return &Flow{
		ID:      id,
		Invoice: invoice,
		// Sized for both events so the watcher never blocks on a reader
		// that has gone away.
		events: make(chan ProgressEvent, 2),
	}
}

// Events returns the progress stream.
func (f *Flow) Events() <-chan ProgressEvent {
	return f.events
}

// Err reports why the stream closed without settling: the caller's context
// error, or services.ErrSettlementTimeout. It is nil after settlement and
// must only be read once Events is closed.
func (f *Flow) Err() error {
	return f.err
}

// Wait drains the stream and returns Err. It reports whether the pledge settled.
func (f *Flow) Wait() (bool, error) {
	settled := false
	for event := range f.events {
		if event.Kind == EventSettled {
			settled = true
		}
	}
	return settled, f.err
}

func (c *Controller) watch(ctx context.Context, flow *Flow, req PledgeRequest, directPay DirectPayer) {
	defer close(flow.events)
	logger := logging.WithContext(ctx, c.logger)

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if c.settings.SettlementTimeout > 0 {
		var cancelTimeout context.CancelFunc
		watchCtx, cancelTimeout = context.WithTimeoutCause(watchCtx, c.settings.SettlementTimeout, services.ErrSettlementTimeout)
		defer cancelTimeout()
	}

	settled := make(chan struct{})
	var once sync.Once
	signal := func(source string) {
		once.Do(func() {
			logger.Debug("settlement detected", logging.String("source", source))
			close(settled)
		})
	}

	var group errgroup.Group
	group.Go(func() error {
		c.pollSettlement(watchCtx, flow.Invoice.VerifyURL, signal)
		return nil
	})
	if directPay != nil {
		group.Go(func() error {
			c.tryDirectPay(watchCtx, flow.Invoice, directPay, signal)
			return nil
		})
	}

	var outcome error
	select {
	case <-settled:
	case <-watchCtx.Done():
		outcome = context.Cause(watchCtx)
	}
	if outcome != nil {
		select {
		case <-settled:
			outcome = nil
		default:
		}
	}
	// A cancellation racing a settlement wins: nothing is emitted after the
	// caller has gone.
	if outcome == nil && ctx.Err() != nil {
		outcome = ctx.Err()
	}
	cancel()
	_ = group.Wait()

	detached := context.WithoutCancel(ctx)
	switch {
	case outcome == nil:
		invoice := flow.Invoice
		invoice.Settled = true
		flow.events <- ProgressEvent{Kind: EventSettled, Invoice: invoice}
		c.metrics.PledgeOutcome("settled")
		c.recordOutcome(detached, flow.ID, ledger.PledgeSettled, "")
		logger.Info("pledge settled",
			logging.Sats(req.AmountSats),
			logging.String(logging.FieldEventType, "pledge_settled"),
		)
		c.notify(detached, notifications.EventPledgeSettled, notifications.Payload{
			"amountSats": req.AmountSats,
			"name":       req.SubmitterName,
			"message":    req.MessageText,
		})
	case errors.Is(outcome, services.ErrSettlementTimeout):
		flow.err = services.Wrap(services.ErrSettlementTimeout, "payment", "settle",
			"invoice not paid within "+c.settings.SettlementTimeout.String(), nil)
		c.metrics.PledgeOutcome("expired")
		c.recordOutcome(detached, flow.ID, ledger.PledgeExpired, "settlement timeout")
		logger.Info("pledge expired", logging.String(logging.FieldEventType, "pledge_expired"))
		c.notify(detached, notifications.EventPledgeExpired, notifications.Payload{"amountSats": req.AmountSats})
	default:
		flow.err = outcome
		c.metrics.PledgeOutcome("cancelled")
		c.recordOutcome(detached, flow.ID, ledger.PledgeCancelled, outcome.Error())
		logger.Info("pledge watch cancelled", logging.String(logging.FieldEventType, "pledge_cancelled"))
	}
}

func (c *Controller) pollSettlement(ctx context.Context, verifyURL string, signal func(string)) {
	logger := logging.WithContext(ctx, c.logger)
	ticker := time.NewTicker(c.settings.PollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		settled, err := c.invoices.CheckSettlement(ctx, verifyURL)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			c.metrics.SettlementCheck("error")
			logging.WarnWithContext(logger, "settlement check failed", "settlement_check_failed",
				logging.Error(err),
				logging.Int("consecutive_failures", failures),
				logging.String(logging.FieldImpact, "retrying on next interval"),
			)
			if failures == failureEscalation {
				c.notify(context.WithoutCancel(ctx), notifications.EventError, notifications.Payload{
					"context": "settlement check",
					"error":   err,
				})
			}
			continue
		}
		failures = 0
		if settled {
			c.metrics.SettlementCheck("settled")
			signal("poll")
			return
		}
		c.metrics.SettlementCheck("pending")
	}
}

func (c *Controller) tryDirectPay(ctx context.Context, invoice lnurl.Invoice, pay DirectPayer, signal func(string)) {
	logger := logging.WithContext(ctx, c.logger)
	if err := pay(ctx, invoice); err != nil {
		if ctx.Err() == nil {
			logger.Info("direct payment not completed; waiting for external payment", logging.Error(err))
		}
		return
	}
	settled, err := c.invoices.CheckSettlement(ctx, invoice.VerifyURL)
	if err != nil || !settled {
		logger.Debug("direct payment not yet confirmed by provider", logging.Error(err))
		return
	}
	signal("direct")
}

func (c *Controller) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := c.notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(c.logger, "notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "streamer was not notified"),
		)
	}
}
