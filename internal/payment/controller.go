package payment

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"zapvoice/internal/config"
	"zapvoice/internal/ledger"
	"zapvoice/internal/logging"
	"zapvoice/internal/metrics"
	"zapvoice/internal/notifications"
	"zapvoice/internal/services"
	"zapvoice/internal/services/lnurl"
	"zapvoice/internal/zaps"
)

const (
	defaultPollInterval = 5 * time.Second
	msatPerSat          = 1000
	// failureEscalation is how many consecutive failed settlement checks
	// trigger an operator notification.
	failureEscalation = 12
)

// ProfileSource resolves recipient metadata.
type ProfileSource interface {
	FetchProfile(ctx context.Context, pubkey string) (zaps.Profile, error)
}

// InvoiceProvider creates invoices and reports their settlement.
type InvoiceProvider interface {
	ResolveAddress(ctx context.Context, lud16 string) (lnurl.PayParams, error)
	RequestInvoice(ctx context.Context, params lnurl.PayParams, amountMsat int64, comment, zapRequest string) (lnurl.Invoice, error)
	CheckSettlement(ctx context.Context, verifyURL string) (bool, error)
}

// Ledger records pledge lifecycle transitions.
type Ledger interface {
	CreatePledge(ctx context.Context, pledge *ledger.Pledge) error
	TransitionPledge(ctx context.Context, id string, status ledger.PledgeStatus, message string) error
}

// Settings controls the flow.
type Settings struct {
	Limits            Limits
	Relays            []string
	PollInterval      time.Duration
	SettlementTimeout time.Duration
}

// SettingsFromConfig extracts flow settings from the loaded configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Limits: Limits{
			MinSatoshi:    cfg.Pledge.MinSatoshi,
			MaxTextLength: cfg.Pledge.MaxTextLength,
			Models:        slices.Clone(cfg.Pledge.Models),
		},
		Relays:            slices.Clone(cfg.Nostr.Relays),
		PollInterval:      cfg.SettlementPollInterval(),
		SettlementTimeout: cfg.SettlementTimeout(),
	}
}

// Controller runs pledge flows.
type Controller struct {
	settings  Settings
	validator *Validator
	profiles  ProfileSource
	invoices  InvoiceProvider
	ledger    Ledger
	notifier  notifications.Service
	metrics   *metrics.Metrics
	logger    *slog.Logger
	newID     func() string
}

// Option customizes the controller.
type Option func(*Controller)

// WithLedger records pledges as they move through their lifecycle.
func WithLedger(store Ledger) Option {
	return func(c *Controller) {
		c.ledger = store
	}
}

// WithNotifier sends settled pledges and persistent failures to the streamer.
func WithNotifier(notifier notifications.Service) Option {
	return func(c *Controller) {
		if notifier != nil {
			c.notifier = notifier
		}
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithIDGenerator overrides pledge id generation.
func WithIDGenerator(newID func() string) Option {
	return func(c *Controller) {
		if newID != nil {
			c.newID = newID
		}
	}
}

// NewController builds a controller.
func NewController(settings Settings, profiles ProfileSource, invoices InvoiceProvider, opts ...Option) *Controller {
	if settings.PollInterval <= 0 {
		settings.PollInterval = defaultPollInterval
	}
	c := &Controller{
		settings:  settings,
		validator: NewValidator(settings.Limits),
		profiles:  profiles,
		invoices:  invoices,
		notifier:  notifications.NewService(nil),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "payment")
	return c
}

// Validate checks req against the configured limits without contacting any
// external service.
func (c *Controller) Validate(req PledgeRequest) error {
	return c.validator.Validate(req.Normalized())
}

// DirectPayer attempts to pay an invoice immediately, for example through a
// wallet connected to the server. Returning nil means the payer believes the
// invoice is paid; the provider still has to confirm it.
type DirectPayer func(ctx context.Context, invoice lnurl.Invoice) error

// SubmitOption customizes a single flow.
type SubmitOption func(*submitOptions)

type submitOptions struct {
	directPay DirectPayer
}

// WithDirectPay races payer against the settlement poll loop.
func WithDirectPay(payer DirectPayer) SubmitOption {
	return func(o *submitOptions) {
		o.directPay = payer
	}
}

// SubmitPledge validates req, obtains an invoice, and starts watching it.
// Errors returned here are terminal: validation, an unpayable recipient, or a
// failed invoice request. The flow stops when ctx is cancelled.
func (c *Controller) SubmitPledge(ctx context.Context, req PledgeRequest, opts ...SubmitOption) (*Flow, error) {
	var options submitOptions
	for _, opt := range opts {
		opt(&options)
	}

	req = req.Normalized()
	if err := c.validator.Validate(req); err != nil {
		c.metrics.PledgeOutcome("rejected")
		return nil, err
	}
	recipient, err := zaps.DecodePubkey(req.RecipientID)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "payment", "submit", "npub is not a valid public key", err)
	}
	var goalID string
	if req.GoalEventID != "" {
		if goalID, err = zaps.DecodeEventID(req.GoalEventID); err != nil {
			return nil, services.Wrap(services.ErrValidation, "payment", "submit", "eventId is not a valid event reference", err)
		}
	}

	pledgeID := c.newID()
	ctx = services.WithPledgeID(ctx, pledgeID)
	ctx = services.WithRecipient(ctx, recipient)
	logger := logging.WithContext(ctx, c.logger)

	params, err := c.resolveRecipient(ctx, recipient)
	if err != nil {
		c.metrics.PledgeOutcome("not_payable")
		logger.Info("recipient cannot be paid", logging.Error(err))
		return nil, err
	}
	if !params.AllowsNostr {
		logging.WarnWithContext(logger, "provider does not accept zap requests", "zap_unsupported",
			logging.String("lud16_callback", params.Callback),
			logging.String(logging.FieldImpact, "pledge will be paid but no alert or goal progress will appear"),
		)
	}

	amountMsat := req.AmountSats * msatPerSat
	zapRequest, err := zaps.BuildAnonymousRequest(zaps.RequestParams{
		Recipient:     recipient,
		GoalEventID:   goalID,
		AmountMsat:    amountMsat,
		Relays:        c.settings.Relays,
		Comment:       req.MessageText,
		SubmitterName: req.SubmitterName,
		VoiceModel:    req.VoiceModel,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrInvoiceCreation, "payment", "zap request", "", err)
	}
	encoded, err := zaps.EncodeRequest(zapRequest)
	if err != nil {
		return nil, services.Wrap(services.ErrInvoiceCreation, "payment", "zap request", "", err)
	}

	invoice, err := c.invoices.RequestInvoice(ctx, params, amountMsat, req.MessageText, encoded)
	if err != nil {
		c.metrics.PledgeOutcome("invoice_failed")
		logging.ErrorWithContext(logger, "invoice request failed", "invoice_creation_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the recipient's lightning provider"),
		)
		return nil, err
	}

	c.recordCreated(ctx, pledgeID, recipient, goalID, req, invoice)
	c.metrics.PledgeOutcome("created")
	logger.Info("invoice created",
		logging.Sats(req.AmountSats),
		logging.String(logging.FieldEventType, "invoice_created"),
	)

	flow := newFlow(pledgeID, invoice)
	flow.events <- ProgressEvent{Kind: EventInvoiceCreated, Invoice: invoice}
	go c.watch(ctx, flow, req, options.directPay)
	return flow, nil
}

func (c *Controller) resolveRecipient(ctx context.Context, recipient string) (lnurl.PayParams, error) {
	profile, err := c.profiles.FetchProfile(ctx, recipient)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return lnurl.PayParams{}, services.Wrap(services.ErrRecipientNotPayable, "payment", "resolve", "recipient has no profile", nil)
		}
		return lnurl.PayParams{}, err
	}
	if profile.LUD16 == "" {
		return lnurl.PayParams{}, services.Wrap(services.ErrRecipientNotPayable, "payment", "resolve", "recipient has no lightning address", nil)
	}
	return c.invoices.ResolveAddress(ctx, profile.LUD16)
}

func (c *Controller) recordCreated(ctx context.Context, id, recipient, goalID string, req PledgeRequest, invoice lnurl.Invoice) {
	if c.ledger == nil {
		return
	}
	err := c.ledger.CreatePledge(context.WithoutCancel(ctx), &ledger.Pledge{
		ID:             id,
		Recipient:      recipient,
		GoalEventID:    goalID,
		SubmitterName:  req.SubmitterName,
		MessageText:    req.MessageText,
		VoiceModel:     req.VoiceModel,
		AmountSats:     req.AmountSats,
		PaymentRequest: invoice.PaymentRequest,
		VerifyURL:      invoice.VerifyURL,
	})
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, c.logger), "ledger write failed", "ledger_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "pledge history will be incomplete"),
		)
	}
}

func (c *Controller) recordOutcome(ctx context.Context, id string, status ledger.PledgeStatus, message string) {
	if c.ledger == nil {
		return
	}
	if err := c.ledger.TransitionPledge(ctx, id, status, message); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, c.logger), "ledger update failed", "ledger_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "pledge history will be incomplete"),
		)
	}
}
