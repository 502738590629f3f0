package email

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

// TemplateData fills the notification templates.
type TemplateData struct {
	RecipientName string
	OtherParty    string
	BookingLabel  string
	Date          string
	Time          string
	Reason        string
	Reference     string
}

const (
	TemplateBookingCreated        = "booking.created"
	TemplateBookingAccepted       = "booking.accepted"
	TemplateBookingRejected       = "booking.rejected"
	TemplateBookingCancelled      = "booking.cancelled"
	TemplateBookingPaid           = "booking.paid"
	TemplateBookingCompleted      = "booking.completed"
	TemplatePrescriptionIssued    = "prescription.issued"
	TemplatePrescriptionDispensed = "prescription.dispensed"
)

type emailTemplate struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

var templates = map[string]emailTemplate{
	TemplateBookingCreated: parse(TemplateBookingCreated,
		"New {{.BookingLabel}} request for {{.Date}}",
		"Hi {{.RecipientName}},\n\n{{.OtherParty}} requested a {{.BookingLabel}} on {{.Date}} at {{.Time}}.\nReason: {{.Reason}}\n"),
	TemplateBookingAccepted: parse(TemplateBookingAccepted,
		"Your {{.BookingLabel}} on {{.Date}} was accepted",
		"Hi {{.RecipientName}},\n\n{{.OtherParty}} accepted your {{.BookingLabel}} on {{.Date}} at {{.Time}}. You can now complete the payment.\n"),
	TemplateBookingRejected: parse(TemplateBookingRejected,
		"Your {{.BookingLabel}} on {{.Date}} was declined",
		"Hi {{.RecipientName}},\n\n{{.OtherParty}} declined your {{.BookingLabel}} on {{.Date}} at {{.Time}}.{{if .Reason}}\nReason: {{.Reason}}{{end}}\n"),
	TemplateBookingCancelled: parse(TemplateBookingCancelled,
		"{{.BookingLabel}} on {{.Date}} cancelled",
		"Hi {{.RecipientName}},\n\nThe {{.BookingLabel}} with {{.OtherParty}} on {{.Date}} at {{.Time}} was cancelled.{{if .Reason}}\nReason: {{.Reason}}{{end}}\n"),
	TemplateBookingPaid: parse(TemplateBookingPaid,
		"Payment received for {{.BookingLabel}} on {{.Date}}",
		"Hi {{.RecipientName}},\n\nPayment for the {{.BookingLabel}} with {{.OtherParty}} on {{.Date}} at {{.Time}} went through.\n"),
	TemplateBookingCompleted: parse(TemplateBookingCompleted,
		"{{.BookingLabel}} on {{.Date}} completed",
		"Hi {{.RecipientName}},\n\nYour {{.BookingLabel}} with {{.OtherParty}} on {{.Date}} is marked completed.\n"),
	TemplatePrescriptionIssued: parse(TemplatePrescriptionIssued,
		"New prescription from {{.OtherParty}}",
		"Hi {{.RecipientName}},\n\n{{.OtherParty}} issued prescription {{.Reference}}.\n"),
	TemplatePrescriptionDispensed: parse(TemplatePrescriptionDispensed,
		"Prescription dispensed",
		"Hi {{.RecipientName}},\n\nPrescription {{.Reference}} was dispensed by {{.OtherParty}}.\n"),
}

func parse(name, subject, text string) emailTemplate {
	html := "<p>" + text + "</p>"
	return emailTemplate{
		subject: texttemplate.Must(texttemplate.New(name + ".subject").Parse(subject)),
		text:    texttemplate.Must(texttemplate.New(name + ".text").Parse(text)),
		html:    htmltemplate.Must(htmltemplate.New(name + ".html").Parse(html)),
	}
}

// Render builds the message for a template. The caller sets the recipient.
func Render(name string, data TemplateData) (Message, error) {
	t, ok := templates[name]
	if !ok {
		return Message{}, fmt.Errorf("email: unknown template %q", name)
	}

	var subject, text, html bytes.Buffer
	if err := t.subject.Execute(&subject, data); err != nil {
		return Message{}, fmt.Errorf("failed to render subject: %w", err)
	}
	if err := t.text.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("failed to render text body: %w", err)
	}
	if err := t.html.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("failed to render html body: %w", err)
	}
	return Message{Subject: subject.String(), Text: text.String(), HTML: html.String()}, nil
}
