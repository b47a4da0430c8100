// Package notify tells subjects that their certificate has been issued.
// Delivery is best effort: a failed notification never affects a mint.
package notify

import (
	"context"
	"errors"
	"fmt"
)

// Message is the payload delivered after a successful mint. The JSON shape is
// what the notification webhook receives.
type Message struct {
	ID            string `json:"id"`
	CertificateID uint64 `json:"certificateId"`
	To            string `json:"to"`
	Phone         string `json:"phone,omitempty"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	ResultDate    string `json:"resultDate"`
	Issuer        string `json:"issuer"`
}

// SubjectName renders "Last First".
func (m Message) SubjectName() string {
	switch {
	case m.LastName == "":
		return m.FirstName
	case m.FirstName == "":
		return m.LastName
	default:
		return m.LastName + " " + m.FirstName
	}
}

func (m Message) subject() string {
	return fmt.Sprintf("Your test certificate from %s is ready", m.Issuer)
}

func (m Message) body() string {
	return fmt.Sprintf("Dear %s,\n\n%s has issued your test result certificate (No. %d, result date %s).\n",
		m.SubjectName(), m.Issuer, m.CertificateID, m.ResultDate)
}

func (m Message) shortBody() string {
	return fmt.Sprintf("%s issued your test certificate No. %d (result date %s).",
		m.Issuer, m.CertificateID, m.ResultDate)
}

// Sender delivers one message over one channel.
type Sender interface {
	Channel() string
	Send(ctx context.Context, msg Message) error
}

// ErrNoRecipient is returned by a sender whose address field is empty.
var ErrNoRecipient = errors.New("message has no recipient for this channel")

// Fanout sends to every channel and joins the errors.
type Fanout []Sender

func (f Fanout) Channel() string { return "fanout" }

func (f Fanout) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, s := range f {
		if err := s.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Channel(), err))
		}
	}
	return errors.Join(errs...)
}

// Nop discards messages. It stands in when every channel is disabled.
type Nop struct{}

func (Nop) Channel() string { return "none" }
func (Nop) Send(context.Context, Message) error { return nil }
