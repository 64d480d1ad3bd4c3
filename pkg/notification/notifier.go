package notification

import (
	"bytes"
	"context"
	htmltemplate "html/template"
	"text/template"
)

// Message is a rendered notification ready for delivery
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Notifier delivers a Message to its recipient
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

const passwordResetText = `Hi {{.Name}},

We received a request to reset the password for your account.
Open the link below within {{.ValidFor}} to choose a new password:

{{.Link}}

If you did not ask for this, you can ignore this email.
`

const passwordResetHTML = `<p>Hi {{.Name}},</p>
<p>We received a request to reset the password for your account.
Open the link below within {{.ValidFor}} to choose a new password:</p>
<p><a href="{{.Link}}">Reset your password</a></p>
<p>If you did not ask for this, you can ignore this email.</p>
`

var (
	passwordResetTextTmpl = template.Must(template.New("reset-text").Parse(passwordResetText))
	passwordResetHTMLTmpl = htmltemplate.Must(htmltemplate.New("reset-html").Parse(passwordResetHTML))
)

// PasswordResetData fills the password reset templates
type PasswordResetData struct {
	Name     string
	Link     string
	ValidFor string
}

// PasswordResetMessage renders the reset email for to.
func PasswordResetMessage(to string, data PasswordResetData) (Message, error) {
	if data.Name == "" {
		data.Name = "there"
	}

	var text, html bytes.Buffer
	if err := passwordResetTextTmpl.Execute(&text, data); err != nil {
		return Message{}, err
	}
	if err := passwordResetHTMLTmpl.Execute(&html, data); err != nil {
		return Message{}, err
	}

	return Message{
		To:      to,
		Subject: "Reset your password",
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
