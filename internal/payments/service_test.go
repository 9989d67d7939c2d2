package payments

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestService_SaveAssignsToken(t *testing.T) {
	svc, store := newTestService(t)
	p := newTestPayment(t, svc, "dummy")

	require.NotZero(t, p.ID)
	require.Len(t, p.Token, 36)
	require.Equal(t, StatusWaiting, p.Status)
	require.Equal(t, FraudUnknown, p.FraudStatus)

	got, err := store.GetByToken(context.Background(), p.Token)
	require.NoError(t, err)
	require.Equal(t, p.ID, got.ID)

	token := p.Token
	require.NoError(t, svc.Save(context.Background(), p))
	require.Equal(t, token, p.Token)
}

func TestService_SaveRetriesTokenCollisions(t *testing.T) {
	store := NewMemoryStore()
	taken := NewPayment("dummy", "USD", dec("1"))
	taken.Token = "taken"
	require.NoError(t, store.Create(context.Background(), taken))

	var tests = []struct {
		name        string
		tokens      []string
		expected    string
		expectedErr error
	}{
		{name: "collision then fresh", tokens: []string{"taken", "taken", "fresh"}, expected: "fresh"},
		{name: "always colliding", tokens: []string{"taken"}, expectedErr: ErrTokenSpaceExhausted},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			svc := NewService(ServiceConfig{Store: store, Tokens: func() string {
				tok := tt.tokens[min(calls, len(tt.tokens)-1)]
				calls++
				return tok
			}})

			p := NewPayment("dummy", "USD", dec("1"))
			err := svc.Save(context.Background(), p)
			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
				require.Equal(t, maxTokenAttempts, calls)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, p.Token)
		})
	}
}

func TestService_ChangeStatusNotifiesRobustly(t *testing.T) {
	svc, store := newTestService(t)
	p := newTestPayment(t, svc, "dummy")

	var seen []Status
	svc.Signals().Subscribe("panics", func(context.Context, *Payment) error { panic("boom") })
	svc.Signals().Subscribe("fails", func(context.Context, *Payment) error { return errors.New("down") })
	svc.Signals().Subscribe("records", func(_ context.Context, p *Payment) error {
		seen = append(seen, p.Status)
		return nil
	})

	require.NoError(t, svc.ChangeStatus(context.Background(), p, StatusRejected, "declined"))
	require.Equal(t, []Status{StatusRejected}, seen)

	got, err := store.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, got.Status)
	require.Equal(t, "declined", got.Message)

	require.ErrorIs(t, svc.ChangeStatus(context.Background(), p, Status("paid"), ""), ErrInvalidStatus)
}

func TestSignals_SendRobustCollectsErrors(t *testing.T) {
	s := NewSignals()
	s.Subscribe("a", func(context.Context, *Payment) error { panic("boom") })
	s.Subscribe("b", func(context.Context, *Payment) error { return errors.New("down") })
	s.Subscribe("c", func(context.Context, *Payment) error { return nil })

	errs := s.SendRobust(context.Background(), &Payment{})
	require.Len(t, errs, 2)
	require.Contains(t, errs[0].Error(), "panicked")
	require.Contains(t, errs[1].Error(), "down")
}

func TestService_ChangeFraudStatus(t *testing.T) {
	var tests = []struct {
		name        string
		status      FraudStatus
		commit      bool
		expectedErr error
		stored      FraudStatus
	}{
		{name: "commit saves", status: FraudReject, commit: true, stored: FraudReject},
		{name: "no commit keeps store untouched", status: FraudAccept, commit: false, stored: FraudUnknown},
		{name: "invalid value", status: FraudStatus("maybe"), commit: true, expectedErr: ErrInvalidFraudStatus, stored: FraudUnknown},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, store := newTestService(t)
			p := newTestPayment(t, svc, "dummy")

			err := svc.ChangeFraudStatus(context.Background(), p, tt.status, "checked", tt.commit)
			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
			} else {
				require.NoError(t, err)
				require.Equal(t, tt.status, p.FraudStatus)
				require.Equal(t, "checked", p.FraudMessage)
			}

			got, err := store.GetByID(context.Background(), p.ID)
			require.NoError(t, err)
			require.Equal(t, tt.stored, got.FraudStatus)
		})
	}
}

func TestService_Capture(t *testing.T) {
	var tests = []struct {
		name           string
		status         Status
		captured       string
		amount         *decimal.Decimal
		final          bool
		provider       func() *providerMock
		expectedErr    error
		gatewayErr     bool
		expectedStatus Status
		expectedAmount string
	}{
		{
			name:        "only preauth",
			status:      StatusConfirmed,
			provider:    func() *providerMock { return new(providerMock) },
			expectedErr: ErrInvalidStatus,
		},
		{
			name:   "default captures remaining and confirms",
			status: StatusPreauth,
			final:  true,
			provider: func() *providerMock {
				m := new(providerMock)
				m.On("Capture", mock.Anything, mock.Anything, mock.MatchedBy(func(d decimal.Decimal) bool {
					return d.Equal(dec("100"))
				})).Return(dec("100"), nil)
				return m
			},
			expectedStatus: StatusConfirmed,
			expectedAmount: "100",
		},
		{
			name:     "partial capture stays preauth",
			status:   StatusPreauth,
			captured: "20",
			amount:   decPtr("30"),
			provider: func() *providerMock {
				m := new(providerMock)
				m.On("Capture", mock.Anything, mock.Anything, mock.Anything).Return(dec("30"), nil)
				return m
			},
			expectedStatus: StatusPreauth,
			expectedAmount: "50",
		},
		{
			name:        "more than remaining",
			status:      StatusPreauth,
			captured:    "90",
			amount:      decPtr("20"),
			provider:    func() *providerMock { return new(providerMock) },
			expectedErr: ErrCaptureExceedsTotal,
		},
		{
			name:   "gateway failure",
			status: StatusPreauth,
			provider: func() *providerMock {
				m := new(providerMock)
				m.On("Capture", mock.Anything, mock.Anything, mock.Anything).Return(decimal.Zero, &PaymentError{Message: "declined"})
				return m
			},
			gatewayErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, store := newTestService(t)
			pm := tt.provider()
			svc.Registry().Register("mock", pm)

			p := newTestPayment(t, svc, "mock")
			p.Status = tt.status
			if tt.captured != "" {
				p.CapturedAmount = dec(tt.captured)
			}
			require.NoError(t, svc.Save(context.Background(), p))

			_, err := svc.Capture(context.Background(), p, tt.amount, tt.final)
			if tt.gatewayErr {
				var perr *PaymentError
				require.ErrorAs(t, err, &perr)
				require.True(t, p.CapturedAmount.IsZero())
				return
			}
			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
				pm.AssertNotCalled(t, "Capture", mock.Anything, mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)

			got, err := store.GetByID(context.Background(), p.ID)
			require.NoError(t, err)
			require.Equal(t, tt.expectedStatus, got.Status)
			require.True(t, dec(tt.expectedAmount).Equal(got.CapturedAmount), got.CapturedAmount.String())
			pm.AssertExpectations(t)
		})
	}
}

func TestService_Release(t *testing.T) {
	svc, _ := newTestService(t)
	pm := new(providerMock)
	pm.On("Release", mock.Anything, mock.Anything).Return(nil)
	svc.Registry().Register("mock", pm)

	p := newTestPayment(t, svc, "mock")
	require.ErrorIs(t, svc.Release(context.Background(), p), ErrInvalidStatus)

	p.Status = StatusPreauth
	require.NoError(t, svc.Save(context.Background(), p))
	require.NoError(t, svc.Release(context.Background(), p))
	require.Equal(t, StatusRefunded, p.Status)
	pm.AssertNumberOfCalls(t, "Release", 1)
}

func TestService_Refund(t *testing.T) {
	var tests = []struct {
		name             string
		status           Status
		amount           *decimal.Decimal
		refunded         string
		expectedErr      error
		expectedStatus   Status
		expectedCaptured string
	}{
		{name: "only confirmed", status: StatusPreauth, expectedErr: ErrInvalidStatus},
		{name: "more than captured", status: StatusConfirmed, amount: decPtr("150"), expectedErr: ErrRefundExceedsCaptured},
		{name: "partial keeps confirmed", status: StatusConfirmed, amount: decPtr("40"), refunded: "40", expectedStatus: StatusConfirmed, expectedCaptured: "60"},
		{name: "full refund", status: StatusConfirmed, refunded: "100", expectedStatus: StatusRefunded, expectedCaptured: "0"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, _ := newTestService(t)
			pm := new(providerMock)
			if tt.refunded != "" {
				pm.On("Refund", mock.Anything, mock.Anything, mock.Anything).Return(dec(tt.refunded), nil)
			}
			svc.Registry().Register("mock", pm)

			p := newTestPayment(t, svc, "mock")
			p.Status = tt.status
			p.CapturedAmount = dec("100")
			require.NoError(t, svc.Save(context.Background(), p))

			_, err := svc.Refund(context.Background(), p, tt.amount)
			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expectedStatus, p.Status)
			require.True(t, dec(tt.expectedCaptured).Equal(p.CapturedAmount))
		})
	}
}

func TestService_FormUnknownVariant(t *testing.T) {
	svc, _ := newTestService(t)
	p := newTestPayment(t, svc, "nope")
	_, err := svc.Form(context.Background(), p, nil)
	require.ErrorIs(t, err, ErrVariantNotFound)
}

func TestService_FormLogsRedirects(t *testing.T) {
	logs := new(logsMock)
	svc := NewService(ServiceConfig{Store: NewMemoryStore(), Logs: logs})
	svc.Registry().Register("cod", NewCashOnDeliveryProvider(basicFor(svc, false)))
	p := newTestPayment(t, svc, "cod")

	logs.On("InsertPaymentLog", mock.Anything, p.ID, "redirect", mock.Anything).Return(nil).Once()

	_, err := svc.Form(context.Background(), p, nil)
	rn, ok := AsRedirect(err)
	require.True(t, ok)
	require.Equal(t, testURLs.ProcessURL(p), rn.URL)
	logs.AssertExpectations(t)
}

func TestService_ProcessLocking(t *testing.T) {
	var tests = []struct {
		name         string
		locker       func() *lockerMock
		expectedErr  error
		expectedCode int
	}{
		{
			name: "lock held elsewhere",
			locker: func() *lockerMock {
				m := new(lockerMock)
				m.On("Acquire", mock.Anything, mock.Anything, processLockTTL).Return(nil, ErrAlreadyProcessing)
				return m
			},
			expectedErr: ErrAlreadyProcessing,
		},
		{
			name: "lock acquired and released",
			locker: func() *lockerMock {
				m := new(lockerMock)
				m.On("Acquire", mock.Anything, mock.Anything, processLockTTL).Return(func() {}, nil)
				return m
			},
			expectedCode: http.StatusFound,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			lm := tt.locker()
			svc := NewService(ServiceConfig{Store: NewMemoryStore(), Locker: lm})
			svc.Registry().Register("cod", NewCashOnDeliveryProvider(basicFor(svc, false)))
			p := newTestPayment(t, svc, "cod")

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/v1/payments/process/"+p.Token, nil)
			err := svc.Process(rr, req, p.Token)
			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expectedCode, rr.Code)
			lm.AssertCalled(t, "Acquire", mock.Anything, "payment_lock:"+p.Token, processLockTTL)
		})
	}
}

func TestService_ProcessUnknownToken(t *testing.T) {
	svc, _ := newTestService(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/payments/process/x", nil)
	require.ErrorIs(t, svc.Process(rr, req, "x"), ErrNotFound)
}

func TestService_LifecycleRespectsLock(t *testing.T) {
	var tests = []struct {
		name   string
		status Status
		call   func(svc *Service, p *Payment) error
	}{
		{
			name:   "capture",
			status: StatusPreauth,
			call: func(svc *Service, p *Payment) error {
				_, err := svc.Capture(context.Background(), p, nil, true)
				return err
			},
		},
		{
			name:   "release",
			status: StatusPreauth,
			call: func(svc *Service, p *Payment) error {
				return svc.Release(context.Background(), p)
			},
		},
		{
			name:   "refund",
			status: StatusConfirmed,
			call: func(svc *Service, p *Payment) error {
				_, err := svc.Refund(context.Background(), p, nil)
				return err
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			lm := new(lockerMock)
			lm.On("Acquire", mock.Anything, mock.Anything, processLockTTL).Return(nil, ErrAlreadyProcessing)
			svc := NewService(ServiceConfig{Store: NewMemoryStore(), Locker: lm})
			pm := new(providerMock)
			svc.Registry().Register("mock", pm)

			p := newTestPayment(t, svc, "mock")
			p.Status = tt.status
			p.CapturedAmount = dec("100")
			require.NoError(t, svc.Save(context.Background(), p))

			require.ErrorIs(t, tt.call(svc, p), ErrAlreadyProcessing)
			lm.AssertCalled(t, "Acquire", mock.Anything, "payment_lock:"+p.Token, processLockTTL)
			pm.AssertNotCalled(t, "Capture", mock.Anything, mock.Anything, mock.Anything)
			pm.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
			pm.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestService_RefundUsesStoredState(t *testing.T) {
	released := 0
	lm := new(lockerMock)
	lm.On("Acquire", mock.Anything, mock.Anything, processLockTTL).Return(func() { released++ }, nil)
	svc := NewService(ServiceConfig{Store: NewMemoryStore(), Locker: lm})
	pm := new(providerMock)
	pm.On("Refund", mock.Anything, mock.Anything, mock.Anything).Return(dec("100"), nil).Once()
	svc.Registry().Register("mock", pm)

	p := newTestPayment(t, svc, "mock")
	p.Status = StatusConfirmed
	p.CapturedAmount = dec("100")
	require.NoError(t, svc.Save(context.Background(), p))

	first, err := svc.Get(context.Background(), p.Token)
	require.NoError(t, err)
	second, err := svc.Get(context.Background(), p.Token)
	require.NoError(t, err)

	_, err = svc.Refund(context.Background(), first, nil)
	require.NoError(t, err)
	require.Equal(t, StatusRefunded, first.Status)

	_, err = svc.Refund(context.Background(), second, nil)
	require.ErrorIs(t, err, ErrInvalidStatus)
	require.Equal(t, StatusRefunded, second.Status)

	pm.AssertNumberOfCalls(t, "Refund", 1)
	require.Equal(t, 2, released)
}
