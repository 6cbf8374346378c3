package email

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
)

// TemplateData is what a lead contributes to a template.
type TemplateData struct {
	FirstName   string
	FullName    string
	VehicleType string
	PaymentType string
	BrokerName  string
}

type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

var vehicleLabels = map[string]string{
	"sedan":             "sedan",
	"suv":               "SUV",
	"hatchback":         "hatchback",
	"coupe-convertible": "coupe or convertible",
	"truck":             "truck",
	"minivan":           "minivan",
}

var paymentLabels = map[string]string{
	"cash":    "cash purchase",
	"finance": "financing",
}

// Humanize maps form values to the wording used in emails.
func (d TemplateData) Humanize() TemplateData {
	if v, ok := vehicleLabels[d.VehicleType]; ok {
		d.VehicleType = v
	}
	if v, ok := paymentLabels[d.PaymentType]; ok {
		d.PaymentType = v
	}
	if d.FirstName == "" {
		d.FirstName = "there"
	}
	return d
}

func (t Template) Render(data TemplateData) (string, string, error) {
	data = data.Humanize()

	subj, err := texttemplate.New(t.ID + "-subject").Parse(t.Subject)
	if err != nil {
		return "", "", fmt.Errorf("parse subject %s: %w", t.ID, err)
	}
	var subject bytes.Buffer
	if err := subj.Execute(&subject, data); err != nil {
		return "", "", fmt.Errorf("render subject %s: %w", t.ID, err)
	}

	body, err := htmltemplate.New(t.ID).Parse(layoutHead + t.Body + layoutFoot)
	if err != nil {
		return "", "", fmt.Errorf("parse body %s: %w", t.ID, err)
	}
	var html bytes.Buffer
	if err := body.Execute(&html, data); err != nil {
		return "", "", fmt.Errorf("render body %s: %w", t.ID, err)
	}
	return strings.TrimSpace(subject.String()), html.String(), nil
}

// Templates returns the canned templates in display order.
func Templates() []Template {
	out := make([]Template, len(cannedTemplates))
	copy(out, cannedTemplates)
	return out
}

func Lookup(id string) (Template, bool) {
	for _, t := range cannedTemplates {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}

var cannedTemplates = []Template{
	{
		ID:      "first-contact",
		Name:    "First contact",
		Subject: "Your {{.VehicleType}} application, {{.FirstName}}",
		Body: `<p>Hi {{.FirstName}},</p>
<p>Thanks for reaching out about a {{.VehicleType}}. We received your application and a specialist is reviewing your {{.PaymentType}} options now.</p>
<p>Reply to this email or give us a call whenever suits you best.</p>`,
	},
	{
		ID:      "follow-up",
		Name:    "Follow-up",
		Subject: "Checking in on your {{.VehicleType}} search",
		Body: `<p>Hi {{.FirstName}},</p>
<p>We tried to reach you about your {{.VehicleType}} application. Are you still looking? Let us know a good time to talk.</p>`,
	},
	{
		ID:      "documents-needed",
		Name:    "Documents needed",
		Subject: "A few documents to finish your application",
		Body: `<p>Hi {{.FirstName}},</p>
<p>To finalize your {{.PaymentType}} we need a recent pay stub and proof of address. You can reply to this email with photos.</p>`,
	},
	{
		ID:      "approved",
		Name:    "Approved",
		Subject: "Good news, {{.FirstName}}: you're approved",
		Body: `<p>Hi {{.FirstName}},</p>
<p>Your {{.PaymentType}} has been approved. Let's book a time to pick out your {{.VehicleType}}.</p>`,
	},
	{
		ID:      "no-response",
		Name:    "No response",
		Subject: "Should we close your file?",
		Body: `<p>Hi {{.FirstName}},</p>
<p>We haven't been able to reach you. If you're still interested in a {{.VehicleType}}, just reply and we'll pick things back up.</p>`,
	},
}

const layoutHead = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
`

const layoutFoot = `
    <div class="footer">
        <p>{{.BrokerName}}</p>
    </div>
</body>
</html>`
