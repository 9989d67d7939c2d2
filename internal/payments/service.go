package payments

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const processLockTTL = 30 * time.Second

type ServiceConfig struct {
	Store    Store
	Registry *Registry
	Signals  *Signals
	Logger   *zap.SugaredLogger

	// Optional.
	Logs   LogsStore
	Locker Locker
	Tokens TokenSource
}

// Service drives the payment lifecycle and is the Recorder handed to providers.
type Service struct {
	store    Store
	registry *Registry
	signals  *Signals
	logs     LogsStore
	locker   Locker
	tokens   TokenSource
	logger   *zap.SugaredLogger
}

func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		store:    cfg.Store,
		registry: cfg.Registry,
		signals:  cfg.Signals,
		logs:     cfg.Logs,
		locker:   cfg.Locker,
		tokens:   cfg.Tokens,
		logger:   cfg.Logger,
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	if s.signals == nil {
		s.signals = NewSignals()
	}
	if s.tokens == nil {
		s.tokens = newUUIDToken
	}
	if s.logger == nil {
		s.logger = zap.NewNop().Sugar()
	}
	return s
}

func (s *Service) Registry() *Registry { return s.registry }

func (s *Service) Signals() *Signals { return s.signals }

func (s *Service) Logger() *zap.SugaredLogger { return s.logger }

// Save creates or updates p, assigning a token on first save.
func (s *Service) Save(ctx context.Context, p *Payment) error {
	if p.Status == "" {
		p.Status = StatusWaiting
	}
	if p.FraudStatus == "" {
		p.FraudStatus = FraudUnknown
	}
	if p.Token == "" {
		if err := s.assignToken(ctx, p); err != nil {
			return err
		}
	}
	if p.ID == 0 {
		if err := s.store.Create(ctx, p); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		return nil
	}
	if err := s.store.Update(ctx, p); err != nil {
		return fmt.Errorf("update payment %d: %w", p.ID, err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, token string) (*Payment, error) {
	return s.store.GetByToken(ctx, token)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]*Payment, int, error) {
	return s.store.List(ctx, f)
}

// ChangeStatus updates the status, saves and notifies subscribers.
// Subscriber failures are logged and never returned.
func (s *Service) ChangeStatus(ctx context.Context, p *Payment, status Status, message string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	previous := p.Status
	p.Status = status
	p.Message = message
	if err := s.Save(ctx, p); err != nil {
		return err
	}

	s.logger.Infow("payment status changed",
		"payment_id", p.ID, "variant", p.Variant, "from", previous, "to", status)

	for _, err := range s.signals.SendRobust(ctx, p) {
		s.logger.Errorw("status changed handler failed", "payment_id", p.ID, "err", err.Error())
	}
	return nil
}

// ChangeFraudStatus records a fraud verdict. The payment is only saved when
// commit is true.
func (s *Service) ChangeFraudStatus(ctx context.Context, p *Payment, status FraudStatus, message string, commit bool) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidFraudStatus, status)
	}
	p.FraudStatus = status
	p.FraudMessage = message
	if !commit {
		return nil
	}
	return s.Save(ctx, p)
}

func (s *Service) provider(p *Payment) (Provider, error) {
	return s.registry.Provider(p.Variant)
}

// Form asks the payment's provider for a form. A *RedirectNeeded error means
// the customer must be redirected instead.
func (s *Service) Form(ctx context.Context, p *Payment, data url.Values) (*Form, error) {
	provider, err := s.provider(p)
	if err != nil {
		return nil, err
	}
	form, err := provider.Form(ctx, p, data)
	if rn, ok := AsRedirect(err); ok {
		s.log(ctx, p, "redirect", map[string]any{"url": rn.URL})
	} else if err != nil {
		s.log(ctx, p, "error", map[string]any{"stage": "form", "error": err.Error()})
	}
	return form, err
}

// WithLock runs fn on a freshly loaded copy of the payment while holding the
// token's processing lock. Without a Locker only the reload happens.
func (s *Service) WithLock(ctx context.Context, token string, fn func(p *Payment) error) error {
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, "payment_lock:"+token, processLockTTL)
		if err != nil {
			return err
		}
		defer release()
	}

	p, err := s.store.GetByToken(ctx, token)
	if err != nil {
		return err
	}
	return fn(p)
}

// locked is WithLock for callers holding a payment: p is refreshed from the
// store before fn runs, so decisions are made on the stored state.
func (s *Service) locked(ctx context.Context, p *Payment, fn func() error) error {
	return s.WithLock(ctx, p.Token, func(fresh *Payment) error {
		*p = *fresh
		return fn()
	})
}

// Process hands a gateway callback to the payment's provider. Callbacks for
// the same token never run concurrently when a Locker is configured.
func (s *Service) Process(w http.ResponseWriter, r *http.Request, token string) error {
	ctx := r.Context()

	return s.WithLock(ctx, token, func(p *Payment) error {
		provider, err := s.provider(p)
		if err != nil {
			return err
		}

		if err := r.ParseForm(); err == nil {
			s.log(ctx, p, "callback", r.Form)
		}

		if err := provider.ProcessData(w, r, p); err != nil {
			s.log(ctx, p, "error", map[string]any{"stage": "process", "error": err.Error()})
			return fmt.Errorf("process %s payment %d: %w", p.Variant, p.ID, err)
		}
		return nil
	})
}

// Capture charges a pre-authorized payment. A nil amount captures whatever
// is left of the total. With final set the payment becomes confirmed.
func (s *Service) Capture(ctx context.Context, p *Payment, amount *decimal.Decimal, final bool) (decimal.Decimal, error) {
	var captured decimal.Decimal
	err := s.locked(ctx, p, func() (err error) {
		captured, err = s.capture(ctx, p, amount, final)
		return err
	})
	return captured, err
}

func (s *Service) capture(ctx context.Context, p *Payment, amount *decimal.Decimal, final bool) (decimal.Decimal, error) {
	if p.Status != StatusPreauth {
		return decimal.Zero, statusError("captured", StatusPreauth, p.Status)
	}

	remaining := p.Remaining()
	value := remaining
	if amount != nil {
		value = *amount
	}
	if !value.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	if value.GreaterThan(remaining) {
		return decimal.Zero, ErrCaptureExceedsTotal
	}

	provider, err := s.provider(p)
	if err != nil {
		return decimal.Zero, err
	}
	captured, err := provider.Capture(ctx, p, value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("capture: %w", err)
	}

	p.CapturedAmount = p.CapturedAmount.Add(captured)
	if final {
		return captured, s.ChangeStatus(ctx, p, StatusConfirmed, "")
	}
	return captured, s.Save(ctx, p)
}

// Release cancels a pre-authorization.
func (s *Service) Release(ctx context.Context, p *Payment) error {
	return s.locked(ctx, p, func() error { return s.release(ctx, p) })
}

func (s *Service) release(ctx context.Context, p *Payment) error {
	if p.Status != StatusPreauth {
		return statusError("released", StatusPreauth, p.Status)
	}
	provider, err := s.provider(p)
	if err != nil {
		return err
	}
	if err := provider.Release(ctx, p); err != nil {
		return fmt.Errorf("release: %w", err)
	}
	return s.ChangeStatus(ctx, p, StatusRefunded, "")
}

// Refund returns captured funds. A nil amount refunds everything captured.
func (s *Service) Refund(ctx context.Context, p *Payment, amount *decimal.Decimal) (decimal.Decimal, error) {
	var refunded decimal.Decimal
	err := s.locked(ctx, p, func() (err error) {
		refunded, err = s.refund(ctx, p, amount)
		return err
	})
	return refunded, err
}

func (s *Service) refund(ctx context.Context, p *Payment, amount *decimal.Decimal) (decimal.Decimal, error) {
	if p.Status != StatusConfirmed {
		return decimal.Zero, statusError("refunded", StatusConfirmed, p.Status)
	}

	value := p.CapturedAmount
	if amount != nil {
		if amount.GreaterThan(p.CapturedAmount) {
			return decimal.Zero, ErrRefundExceedsCaptured
		}
		value = *amount
	}
	if !value.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}

	provider, err := s.provider(p)
	if err != nil {
		return decimal.Zero, err
	}
	refunded, err := provider.Refund(ctx, p, value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("refund: %w", err)
	}

	p.CapturedAmount = p.CapturedAmount.Sub(refunded)
	if !p.CapturedAmount.IsPositive() && p.Status != StatusRefunded {
		return refunded, s.ChangeStatus(ctx, p, StatusRefunded, "")
	}
	return refunded, s.Save(ctx, p)
}

func (s *Service) log(ctx context.Context, p *Payment, logType string, payload any) {
	if s.logs == nil || p.ID == 0 {
		return
	}
	if err := s.logs.InsertPaymentLog(ctx, p.ID, logType, payload); err != nil {
		s.logger.Warnw("payment log insert failed", "payment_id", p.ID, "type", logType, "err", err.Error())
	}
}
