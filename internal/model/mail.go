package model

import "context"

// Mailer delivers transactional email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Message is a plain transactional email.
type Message struct {
	To      string
	Subject string
	Body    string
}
