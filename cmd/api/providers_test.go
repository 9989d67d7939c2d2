package main

import (
	"testing"

	"paykit/internal/payments"

	"github.com/stretchr/testify/require"
)

func TestParseVariants(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    map[string]string
		wantErr bool
	}{
		{name: "pairs", raw: "default=dummy, card=stripe_card", want: map[string]string{"default": "dummy", "card": "stripe_card"}},
		{name: "bare kind", raw: "khalti,esewa", want: map[string]string{"khalti": "khalti", "esewa": "esewa"}},
		{name: "empty", raw: "", want: map[string]string{}},
		{name: "missing kind", raw: "card=", wantErr: true},
		{name: "missing variant", raw: "=cod", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseVariants(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestBuildRegistry(t *testing.T) {
	urls := payments.URLs{Base: "http://api.test"}

	t.Run("registers every configured kind", func(t *testing.T) {
		svc := payments.NewService(payments.ServiceConfig{Store: payments.NewMemoryStore()})
		cfg := paymentsConfig{
			variants: map[string]string{
				"default": "dummy",
				"cod":     "cod",
				"bank":    "banktransfer",
				"stripe":  "stripe",
				"card":    "stripe_card",
				"khalti":  "khalti",
				"esewa":   "esewa",
			},
			stripe: stripeConfig{secretKey: "sk_test", publicKey: "pk_test"},
			khalti: khaltiConfig{secretKey: "test_secret"},
			esewa:  esewaConfig{merchantCode: "EPAYTEST", secretKey: "8gBm/:&EnhH.1/q"},
			bank:   bankConfig{iban: "NP12 3456 7890", bic: "NARBNPKA", salt: "pepper"},
		}
		require.NoError(t, buildRegistry(cfg, urls, svc, nil))
		require.Equal(t, []string{"bank", "card", "cod", "default", "esewa", "khalti", "stripe"}, svc.Registry().Variants())

		provider, err := svc.Registry().Provider("card")
		require.NoError(t, err)
		require.IsType(t, &payments.StripeCardProvider{}, provider)
	})

	tests := []struct {
		name string
		cfg  paymentsConfig
	}{
		{"unknown kind", paymentsConfig{variants: map[string]string{"x": "paypal"}}},
		{"stripe without key", paymentsConfig{variants: map[string]string{"card": "stripe"}}},
		{"khalti without key", paymentsConfig{variants: map[string]string{"khalti": "khalti"}}},
		{"esewa without secret", paymentsConfig{
			variants: map[string]string{"esewa": "esewa"},
			esewa:    esewaConfig{merchantCode: "EPAYTEST"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := payments.NewService(payments.ServiceConfig{Store: payments.NewMemoryStore()})
			require.Error(t, buildRegistry(tt.cfg, urls, svc, nil))
		})
	}
}
