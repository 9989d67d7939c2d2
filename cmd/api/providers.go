package main

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"paykit/internal/payments"
)

// parseVariants reads PAYMENT_VARIANTS, e.g. "default=dummy,card=stripe_card".
// A bare name is both the variant and the provider kind.
func parseVariants(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		variant, kind, found := strings.Cut(item, "=")
		if !found {
			kind = variant
		}
		variant, kind = strings.TrimSpace(variant), strings.TrimSpace(kind)
		if variant == "" || kind == "" {
			return nil, fmt.Errorf("invalid payment variant %q", item)
		}
		out[variant] = kind
	}
	return out, nil
}

// buildRegistry registers one provider per configured variant on svc.
func buildRegistry(cfg paymentsConfig, urls payments.URLs, svc *payments.Service, client *http.Client) error {
	basic := payments.BasicProvider{AutoCapture: cfg.autoCapture, Recorder: svc, URLs: urls, Logger: svc.Logger()}

	names := make([]string, 0, len(cfg.variants))
	for name := range cfg.variants {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, variant := range names {
		var provider payments.Provider

		switch kind := cfg.variants[variant]; kind {
		case "dummy":
			provider = payments.NewDummyProvider(basic)
		case "cod":
			provider = payments.NewCashOnDeliveryProvider(basic)
		case "banktransfer":
			p, err := payments.NewBankTransferProvider(basic, cfg.bank.iban, cfg.bank.bic, cfg.bank.salt)
			if err != nil {
				return fmt.Errorf("variant %s: %w", variant, err)
			}
			provider = p
		case "stripe", "stripe_card":
			if cfg.stripe.secretKey == "" {
				return fmt.Errorf("variant %s: STRIPE_SECRET_KEY is required", variant)
			}
			sc := payments.StripeConfig{
				Name:      cfg.stripe.name,
				SecretKey: cfg.stripe.secretKey,
				PublicKey: cfg.stripe.publicKey,
				Image:     cfg.stripe.image,
			}
			if kind == "stripe" {
				provider = payments.NewStripeProvider(basic, sc, nil)
			} else {
				provider = payments.NewStripeCardProvider(basic, sc, nil)
			}
		case "khalti":
			if cfg.khalti.secretKey == "" {
				return fmt.Errorf("variant %s: KHALTI_SECRET_KEY is required", variant)
			}
			provider = payments.NewKhaltiProvider(basic, payments.KhaltiConfig{
				SecretKey:    cfg.khalti.secretKey,
				WebsiteURL:   cfg.khalti.websiteURL,
				IsProduction: cfg.khalti.isProduction,
			}, client)
		case "esewa":
			if cfg.esewa.merchantCode == "" || cfg.esewa.secretKey == "" {
				return fmt.Errorf("variant %s: ESEWA_MERCHANT_CODE and ESEWA_SECRET_KEY are required", variant)
			}
			provider = payments.NewEsewaProvider(basic, payments.EsewaConfig{
				MerchantCode: cfg.esewa.merchantCode,
				SecretKey:    cfg.esewa.secretKey,
				IsProduction: cfg.esewa.isProduction,
			}, client)
		default:
			return fmt.Errorf("variant %s: unknown provider %q", variant, kind)
		}

		svc.Registry().Register(variant, provider)
	}
	return nil
}
