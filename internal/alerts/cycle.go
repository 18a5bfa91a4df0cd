package alerts

import (
	"context"
	"errors"
	"time"

	"zapvoice/internal/ledger"
	"zapvoice/internal/logging"
	"zapvoice/internal/notifications"
	"zapvoice/internal/services"
	"zapvoice/internal/services/tts"
	"zapvoice/internal/textutil"
	"zapvoice/internal/zaps"
)

const anonymousName = "Anonymous"

// Result is the outcome of one announce cycle.
type Result struct {
	Receipt  zaps.Receipt
	Alert    Alert
	Outcome  ledger.AlertOutcome
	Err      error
	Duration time.Duration
}

func (e *Engine) newAlert(receipt zaps.Receipt) Alert {
	name := textutil.NormalizeMessage(receipt.SubmitterName)
	if name == "" {
		name = anonymousName
	}
	voice := receipt.VoiceModel
	if voice == "" {
		voice = e.settings.Speech.Voice
	}
	return Alert{
		ReceiptID:  receipt.ID,
		Name:       name,
		AmountSats: receipt.AmountSats,
		Text:       textutil.Truncate(textutil.NormalizeMessage(receipt.Comment), e.settings.MaxTextLength),
		Voice:      voice,
	}
}

// announce runs the cycle for one receipt. It never returns early without a
// Result; the run loop relies on exactly one Result per started cycle.
func (e *Engine) announce(ctx context.Context, receipt zaps.Receipt) Result {
	started := time.Now()
	logger := e.logger.With(logging.EventID(receipt.ID))
	result := Result{Receipt: receipt}
	finish := func(outcome ledger.AlertOutcome, err error) Result {
		result.Outcome = outcome
		result.Err = err
		result.Duration = time.Since(started)
		return result
	}

	if e.settings.MinSats > 0 && receipt.AmountSats < e.settings.MinSats {
		logger.Info("receipt below threshold; skipping",
			logging.Sats(receipt.AmountSats),
			logging.Int64("min_sats", e.settings.MinSats),
			logging.String(logging.FieldEventType, "alert_below_threshold"),
		)
		return finish(ledger.AlertDropped, nil)
	}

	alert := e.newAlert(receipt)
	result.Alert = alert
	fail := func(err error) Result {
		if ctx.Err() != nil {
			return finish(ledger.AlertFailed, ctx.Err())
		}
		logging.WarnWithContext(logger, "announcement dropped", "alert_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "this alert will not be replayed"),
		)
		e.presenter.ReportError(context.WithoutCancel(ctx), alert, err)
		return finish(ledger.AlertFailed, err)
	}

	speech := e.settings.Speech
	speech.Text = alert.Text
	speech.Voice = alert.Voice
	var clip tts.Audio
	if alert.Text != "" {
		var err error
		clip, err = e.synth.Synthesize(ctx, speech)
		if err != nil {
			if !errors.Is(err, services.ErrSynthesis) {
				err = services.Wrap(services.ErrSynthesis, "alerts", "synthesize", "", err)
			}
			return fail(err)
		}
	}

	if err := e.step(ctx, "notification", e.presenter.PlayNotification); err != nil {
		return fail(err)
	}
	if err := e.step(ctx, "show", func(ctx context.Context) error { return e.presenter.Show(ctx, alert) }); err != nil {
		e.hideQuietly(ctx)
		return fail(err)
	}
	if err := e.sleep(ctx, e.settings.DisplayDelay); err != nil {
		e.hideQuietly(ctx)
		return fail(err)
	}
	if len(clip.Data) > 0 {
		err := e.step(ctx, "speech", func(ctx context.Context) error {
			return e.presenter.PlaySpeech(ctx, clip)
		})
		if err != nil {
			e.hideQuietly(ctx)
			return fail(err)
		}
	}
	if err := e.step(ctx, "hide", e.presenter.Hide); err != nil {
		return fail(err)
	}
	if err := e.sleep(ctx, e.settings.HideDelay); err != nil {
		return fail(err)
	}

	result = finish(ledger.AlertNarrated, nil)
	logger.Info("alert narrated",
		logging.Sats(alert.AmountSats),
		logging.Duration("took", result.Duration),
		logging.String(logging.FieldEventType, "alert_narrated"),
	)
	if e.observer != nil {
		e.observer(result)
	}
	return result
}

// step runs one presenter call under the step timeout. Failures become
// services.ErrPlayback.
func (e *Engine) step(ctx context.Context, name string, fn func(context.Context) error) error {
	stepCtx := ctx
	if e.settings.StepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, e.settings.StepTimeout)
		defer cancel()
	}
	if err := fn(stepCtx); err != nil {
		if errors.Is(err, services.ErrPlayback) {
			return err
		}
		return services.Wrap(services.ErrPlayback, "alerts", name, "", err)
	}
	return nil
}

func (e *Engine) hideQuietly(ctx context.Context) {
	_ = e.step(context.WithoutCancel(ctx), "hide", e.presenter.Hide)
}

func (e *Engine) record(ctx context.Context, result Result) {
	if errors.Is(result.Err, context.Canceled) {
		return
	}
	detached := context.WithoutCancel(ctx)
	if e.recorder != nil {
		entry := ledger.Alert{
			ReceiptID:        result.Receipt.ID,
			Recipient:        e.settings.Recipient,
			AmountSats:       result.Receipt.AmountSats,
			SubmitterName:    result.Receipt.SubmitterName,
			MessageText:      result.Alert.Text,
			VoiceModel:       result.Alert.Voice,
			Outcome:          result.Outcome,
			ReceiptCreatedAt: result.Receipt.CreatedAt,
		}
		if entry.MessageText == "" {
			entry.MessageText = result.Receipt.Comment
		}
		if result.Err != nil {
			entry.ErrorMessage = result.Err.Error()
		}
		if err := e.recorder.RecordAlert(detached, entry); err != nil {
			logging.WarnWithContext(e.logger, "alert history write failed", "ledger_write_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "alert history will be incomplete"),
			)
		}
	}
	if result.Outcome == ledger.AlertFailed {
		err := e.notifier.Publish(detached, notifications.EventAlertFailed, notifications.Payload{
			"name":       result.Alert.Name,
			"amountSats": result.Receipt.AmountSats,
			"error":      result.Err,
		})
		if err != nil {
			logging.WarnWithContext(e.logger, "notification failed", "notification_failed", logging.Error(err))
		}
	}
}
