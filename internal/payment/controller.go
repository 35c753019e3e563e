package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fbmeirelles/horamarcada/internal/booking"
	"github.com/fbmeirelles/horamarcada/internal/model"
	"github.com/fbmeirelles/horamarcada/internal/outbox"
)

// ReasonPaymentExpired is the system-generated cancellation reason attached
// to appointments whose payment window ran out.
const ReasonPaymentExpired = "payment window expired"

// ReasonPaymentCancelled marks appointments voided by a manual intent
// cancellation during the pending window.
const ReasonPaymentCancelled = "payment cancelled by client"

// AppointmentResolution describes the appointment-side effect applied in the
// same transaction as an intent resolution.
type AppointmentResolution struct {
	Status       model.AppointmentStatus
	CancelReason string
	EventTopic   string
}

// Store persists payment intents. Resolve applies a transition away from
// pending together with its appointment side effect as one atomic unit; it
// reports false without error when the intent already left pending, which is
// what makes countdown firings and poll observations safely racy.
type Store interface {
	Intent(ctx context.Context, id string) (model.PaymentIntent, error)
	LatestForAppointment(ctx context.Context, appointmentID string) (model.PaymentIntent, error)
	PendingIntents(ctx context.Context) ([]model.PaymentIntent, error)
	OverdueIntents(ctx context.Context, asOf time.Time) ([]model.PaymentIntent, error)
	// AddIntent attaches a fresh pending intent to an existing pending
	// appointment. Returns booking.ErrStale when the appointment is not
	// pending, booking.ErrNotFound when it does not exist.
	AddIntent(ctx context.Context, intent model.PaymentIntent) error
	Resolve(ctx context.Context, intentID string, to model.PaymentStatus, res *AppointmentResolution) (bool, error)
}

type Config struct {
	// Window is how long a client has to pay before the intent expires and
	// the appointment is cancelled.
	Window time.Duration
	// PollInterval is how often the gateway is asked for the charge status
	// while the intent is pending.
	PollInterval time.Duration
}

// Controller owns every pending intent's two clocks: the expiry countdown
// and the gateway poll loop. Both stop the instant the intent leaves pending.
type Controller struct {
	store   Store
	gateway Gateway
	logger  *slog.Logger
	cfg     Config
	now     func() time.Time

	mu       sync.Mutex
	watchers map[string]context.CancelFunc
	baseCtx  context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewController(store Store, gateway Gateway, logger *slog.Logger, cfg Config) *Controller {
	if cfg.Window <= 0 {
		cfg.Window = 5 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Controller{
		store:    store,
		gateway:  gateway,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		watchers: make(map[string]context.CancelFunc),
		baseCtx:  baseCtx,
		cancel:   cancel,
	}
}

// Close stops all watchers and waits for them to drain.
func (c *Controller) Close() {
	c.cancel()
	c.wg.Wait()
}

// Plan builds a pending intent without persisting it. The caller commits it
// atomically with the appointment, then arms Watch.
func (c *Controller) Plan(ctx context.Context, appointmentID string, amountCents int64) (model.PaymentIntent, error) {
	now := c.now().UTC()
	expiresAt := now.Add(c.cfg.Window)
	charge, err := c.gateway.Generate(ctx, appointmentID, amountCents, expiresAt)
	if err != nil {
		return model.PaymentIntent{}, fmt.Errorf("generate charge: %w", err)
	}
	return model.PaymentIntent{
		ID:            uuid.NewString(),
		AppointmentID: appointmentID,
		Reference:     charge.Reference,
		Code:          charge.Code,
		AmountCents:   amountCents,
		Status:        model.PaymentPending,
		CreatedAt:     now,
		ExpiresAt:     expiresAt,
	}, nil
}

// Watch arms the countdown and the poll loop for a committed pending intent.
// Watching the same intent twice is a no-op.
func (c *Controller) Watch(intent model.PaymentIntent) {
	c.mu.Lock()
	if _, ok := c.watchers[intent.ID]; ok {
		c.mu.Unlock()
		return
	}
	if c.baseCtx.Err() != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(c.baseCtx)
	c.watchers[intent.ID] = cancel
	c.wg.Add(1)
	c.mu.Unlock()

	go c.watch(ctx, intent)
}

func (c *Controller) watch(ctx context.Context, intent model.PaymentIntent) {
	defer c.wg.Done()
	defer c.dropWatcher(intent.ID)

	timer := time.NewTimer(intent.ExpiresAt.Sub(c.now()))
	defer timer.Stop()
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			c.expire(intent)
			return
		case <-ticker.C:
			status, err := c.gateway.GetStatus(ctx, intent.Reference)
			if err != nil {
				if ctx.Err() == nil {
					c.logger.Warn("payment status poll failed", "intent_id", intent.ID, "error", err)
				}
				continue
			}
			if status.Paid {
				c.markPaid(intent)
				return
			}
		}
	}
}

func (c *Controller) dropWatcher(intentID string) {
	c.mu.Lock()
	if cancel, ok := c.watchers[intentID]; ok {
		delete(c.watchers, intentID)
		cancel()
	}
	c.mu.Unlock()
}

// resolveCtx runs resolution I/O on its own deadline, detached from the
// watcher context, so a stopping watcher can still finish its write.
func (c *Controller) resolveCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func (c *Controller) markPaid(intent model.PaymentIntent) {
	ctx, cancel := c.resolveCtx()
	defer cancel()

	applied, err := c.store.Resolve(ctx, intent.ID, model.PaymentPaid, &AppointmentResolution{
		Status:     model.StatusConfirmed,
		EventTopic: outbox.TopicAppointmentConfirmed,
	})
	if err != nil {
		c.logger.Error("mark intent paid failed", "intent_id", intent.ID, "error", err)
		return
	}
	if applied {
		c.logger.Info("payment confirmed", "intent_id", intent.ID, "appointment_id", intent.AppointmentID)
	}
}

func (c *Controller) expire(intent model.PaymentIntent) {
	ctx, cancel := c.resolveCtx()
	defer cancel()

	applied, err := c.store.Resolve(ctx, intent.ID, model.PaymentExpired, &AppointmentResolution{
		Status:       model.StatusCancelled,
		CancelReason: ReasonPaymentExpired,
		EventTopic:   outbox.TopicAppointmentCancelled,
	})
	if err != nil {
		c.logger.Error("expire intent failed", "intent_id", intent.ID, "error", err)
		return
	}
	if applied {
		c.logger.Info("payment window expired", "intent_id", intent.ID, "appointment_id", intent.AppointmentID)
	}
}

// Status reports the stored intent state plus the countdown remainder shown
// to polling clients. Remaining is zero once the window has passed, even if
// the expiry sweep has not caught up yet.
func (c *Controller) Status(ctx context.Context, intentID string) (model.PaymentIntent, time.Duration, error) {
	intent, err := c.store.Intent(ctx, intentID)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			return model.PaymentIntent{}, 0, booking.NewError(booking.KindValidation, booking.CodePaymentIntentNotFound, "payment intent not found")
		}
		return model.PaymentIntent{}, 0, fmt.Errorf("load intent: %w", err)
	}
	remaining := time.Duration(0)
	if intent.Status == model.PaymentPending {
		if until := intent.ExpiresAt.Sub(c.now()); until > 0 {
			remaining = until
		}
	}
	return intent, remaining, nil
}

// CancelIntent is the client backing out during the pending window. The
// owning appointment is cancelled in the same transaction; the countdown is
// short-circuited.
func (c *Controller) CancelIntent(ctx context.Context, intentID string) (model.PaymentIntent, error) {
	applied, err := c.store.Resolve(ctx, intentID, model.PaymentCancelled, &AppointmentResolution{
		Status:       model.StatusCancelled,
		CancelReason: ReasonPaymentCancelled,
		EventTopic:   outbox.TopicAppointmentCancelled,
	})
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			return model.PaymentIntent{}, booking.NewError(booking.KindValidation, booking.CodePaymentIntentNotFound, "payment intent not found")
		}
		return model.PaymentIntent{}, fmt.Errorf("cancel intent: %w", err)
	}
	if !applied {
		return model.PaymentIntent{}, booking.NewError(booking.KindPolicy, booking.CodePaymentIntentAlreadyClosed, "payment intent is no longer pending")
	}
	c.dropWatcher(intentID)
	return c.store.Intent(ctx, intentID)
}

// Abandon voids the pending intent of an appointment that was cancelled
// through the booking side. The appointment itself is left alone.
func (c *Controller) Abandon(ctx context.Context, appointmentID string) error {
	intent, err := c.store.LatestForAppointment(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			return nil
		}
		return err
	}
	if intent.Status != model.PaymentPending {
		return nil
	}
	if _, err := c.store.Resolve(ctx, intent.ID, model.PaymentCancelled, nil); err != nil {
		return err
	}
	c.dropWatcher(intent.ID)
	return nil
}

// Regenerate issues a fresh intent for a pending appointment whose previous
// window was lost, giving the client another chance to pay.
func (c *Controller) Regenerate(ctx context.Context, appointmentID string) (model.PaymentIntent, error) {
	latest, err := c.store.LatestForAppointment(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			return model.PaymentIntent{}, booking.NewError(booking.KindValidation, booking.CodePaymentIntentNotFound, "appointment has no payment intent")
		}
		return model.PaymentIntent{}, fmt.Errorf("load latest intent: %w", err)
	}
	switch latest.Status {
	case model.PaymentPending:
		return model.PaymentIntent{}, booking.NewError(booking.KindPolicy, booking.CodePaymentIntentStillPending, "current payment intent is still pending")
	case model.PaymentPaid:
		return model.PaymentIntent{}, booking.NewError(booking.KindPolicy, booking.CodePaymentIntentAlreadyClosed, "appointment is already paid")
	}

	intent, err := c.Plan(ctx, appointmentID, latest.AmountCents)
	if err != nil {
		return model.PaymentIntent{}, err
	}
	if err := c.store.AddIntent(ctx, intent); err != nil {
		switch {
		case errors.Is(err, booking.ErrNotFound):
			return model.PaymentIntent{}, booking.NewError(booking.KindValidation, booking.CodeAppointmentNotFound, "appointment not found")
		case errors.Is(err, booking.ErrStale):
			return model.PaymentIntent{}, booking.NewError(booking.KindPolicy, booking.CodeInvalidTransition, "appointment is no longer awaiting payment")
		}
		return model.PaymentIntent{}, fmt.Errorf("persist intent: %w", err)
	}
	c.Watch(intent)
	return intent, nil
}

// Resume re-arms watchers for intents that were pending when the process
// last stopped. Intents already past their window are expired on the spot.
func (c *Controller) Resume(ctx context.Context) error {
	intents, err := c.store.PendingIntents(ctx)
	if err != nil {
		return fmt.Errorf("load pending intents: %w", err)
	}
	now := c.now()
	var resumed, expired int
	for _, intent := range intents {
		if intent.ExpiresAt.Before(now) {
			c.expire(intent)
			expired++
			continue
		}
		c.Watch(intent)
		resumed++
	}
	if resumed+expired > 0 {
		c.logger.Info("payment watchers resumed", "resumed", resumed, "expired", expired)
	}
	return nil
}

// SweepOverdue expires pending intents whose window has passed. It backs up
// the in-process countdowns: if a watcher died with the process, the sweep
// still releases the slot. Resolve's compare-and-set keeps the two paths
// from double-firing.
func (c *Controller) SweepOverdue(ctx context.Context) error {
	overdue, err := c.store.OverdueIntents(ctx, c.now())
	if err != nil {
		return fmt.Errorf("load overdue intents: %w", err)
	}
	for _, intent := range overdue {
		c.expire(intent)
		c.dropWatcher(intent.ID)
	}
	return nil
}
