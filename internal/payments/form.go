package payments

import (
	"bytes"
	"html/template"
	"io"
	"net/url"
)

// Field is a single input of a provider form.
type Field struct {
	Name     string
	Label    string
	Type     string // text, hidden, select
	Value    string
	Choices  []string
	ReadOnly bool
	// Unnamed fields are rendered without a name attribute so their values
	// never reach the server (card data tokenized in the browser).
	Unnamed bool
}

// Form is what a provider hands back for the customer to fill in or submit.
type Form struct {
	Action     string
	Method     string
	Fields     []Field
	Errors     []string
	Widget     template.HTML
	AutoSubmit bool

	// SubmitLabel is the text of the submit button; empty hides it.
	SubmitLabel string
	Data        url.Values
}

func NewForm(action string, data url.Values) *Form {
	return &Form{Action: action, Method: "post", SubmitLabel: "Pay", Data: data}
}

func (f *Form) AddField(fl Field) {
	if fl.Type == "" {
		fl.Type = "text"
	}
	f.Fields = append(f.Fields, fl)
}

func (f *Form) Hidden(name, value string) {
	f.AddField(Field{Name: name, Type: "hidden", Value: value})
}

// Field returns the field called name, or nil.
func (f *Form) Field(name string) *Field {
	for i := range f.Fields {
		if f.Fields[i].Name == name {
			return &f.Fields[i]
		}
	}
	return nil
}

func (f *Form) AddError(msg string) {
	f.Errors = append(f.Errors, msg)
}

func (f *Form) Valid() bool {
	return len(f.Errors) == 0
}

// Bound reports whether the form was built from submitted data.
func (f *Form) Bound() bool {
	return f.Data != nil
}

var formTemplate = template.Must(template.New("form").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Payment</title>
</head>
<body>
  <form id="payment-form" method="{{.Method}}" action="{{.Action}}">
    {{- range .Errors}}
    <p class="error">{{.}}</p>
    {{- end}}
    {{- range .Fields}}
    {{template "field" .}}
    {{- end}}
    {{.Widget}}
    {{- if .AutoSubmit}}
    <noscript><button type="submit">Continue</button></noscript>
    {{- else if .SubmitLabel}}
    <button type="submit">{{.SubmitLabel}}</button>
    {{- end}}
  </form>
  {{- if .AutoSubmit}}
  <script>
    (function(){ document.getElementById('payment-form').submit(); })();
  </script>
  {{- end}}
</body>
</html>
{{define "field"}}
{{- if eq .Type "hidden"}}<input type="hidden"{{if not .Unnamed}} name="{{.Name}}"{{end}} value="{{.Value}}">
{{- else if eq .Type "select"}}<label>{{.Label}} <select{{if not .Unnamed}} name="{{.Name}}"{{end}}>
  {{- $v := .Value}}{{range .Choices}}<option value="{{.}}"{{if eq . $v}} selected{{end}}>{{.}}</option>{{end}}</select></label>
{{- else}}<label>{{.Label}} <input type="{{.Type}}" id="id_{{.Name}}"{{if not .Unnamed}} name="{{.Name}}"{{end}} value="{{.Value}}"{{if .ReadOnly}} readonly{{end}}></label>
{{- end}}
{{- end}}`))

// Render writes the form as a standalone HTML page.
func (f *Form) Render(w io.Writer) error {
	return formTemplate.Execute(w, f)
}

// RenderField renders a single field, mostly useful for embedding.
func (f *Form) RenderField(name string) (string, error) {
	fl := f.Field(name)
	if fl == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := formTemplate.ExecuteTemplate(&buf, "field", fl); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (f *Form) String() string {
	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}
