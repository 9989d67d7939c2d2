package payments

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
)

// StripeCardProvider renders its own card form. Card fields carry no name
// attribute; stripe.js turns them into a stripeToken in the browser.
type StripeCardProvider struct {
	BasicProvider
	cfg StripeConfig
	api StripeAPI
}

func NewStripeCardProvider(b BasicProvider, cfg StripeConfig, api StripeAPI) *StripeCardProvider {
	if api == nil {
		api = NewStripeClient(cfg.SecretKey)
	}
	return &StripeCardProvider{BasicProvider: b, cfg: cfg, api: api}
}

var cardScriptTemplate = template.Must(template.New("card").Parse(`<script src="https://js.stripe.com/v2/"></script>
<script>
  (function(){
    Stripe.setPublishableKey({{.Key}});
    var form = document.getElementById('payment-form');
    form.addEventListener('submit', function(e) {
      if (form.querySelector('[name=stripeToken]').value) { return; }
      e.preventDefault();
      var exp = document.getElementById('id_expiration').value.split('/');
      Stripe.card.createToken({
        name: document.getElementById('id_name').value,
        number: document.getElementById('id_number').value,
        cvc: document.getElementById('id_cvv2').value,
        exp_month: exp[0],
        exp_year: exp[1]
      }, function(status, response) {
        if (response.error) { alert(response.error.message); return; }
        form.querySelector('[name=stripeToken]').value = response.id;
        form.submit();
      });
    });
  })();
</script>`))

func (s *StripeCardProvider) Form(ctx context.Context, p *Payment, data url.Values) (*Form, error) {
	form := NewForm(s.URLs.FormURL(p), data)
	form.AddField(Field{Name: "name", Label: "Name on Credit Card", Unnamed: true})
	form.AddField(Field{Name: "number", Label: "Card Number", Unnamed: true})
	form.AddField(Field{Name: "expiration", Label: "Expiration date (MM/YY)", Unnamed: true})
	form.AddField(Field{Name: "cvv2", Label: "CVV2 Security Number", Unnamed: true})
	form.Hidden("stripeToken", "")

	var buf bytes.Buffer
	if err := cardScriptTemplate.Execute(&buf, map[string]string{"Key": s.cfg.PublicKey}); err != nil {
		return nil, fmt.Errorf("render card script: %w", err)
	}
	form.Widget = template.HTML(buf.String())

	return chargeForm(ctx, s.BasicProvider, s.api, p, form)
}

func (s *StripeCardProvider) ProcessData(w http.ResponseWriter, r *http.Request, p *Payment) error {
	return stripeProcessData(w, r, s.BasicProvider, p)
}

func (s *StripeCardProvider) Capture(ctx context.Context, p *Payment, amount decimal.Decimal) (decimal.Decimal, error) {
	return stripeCapture(ctx, s.api, p, amount)
}

func (s *StripeCardProvider) Release(ctx context.Context, p *Payment) error {
	return stripeRelease(ctx, s.api, p)
}

func (s *StripeCardProvider) Refund(ctx context.Context, p *Payment, amount decimal.Decimal) (decimal.Decimal, error) {
	return stripeRefund(ctx, s.api, p, amount)
}
