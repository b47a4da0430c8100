package notify

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SESService is the subset of *ses.Client used for email.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SNSService is the subset of *sns.Client used for SMS.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type EmailSender struct {
	client SESService
	from   string
}

func NewEmailSender(client SESService, from string) *EmailSender {
	return &EmailSender{client: client, from: from}
}

func (s *EmailSender) Channel() string { return "email" }

func (s *EmailSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	_, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.subject())},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(msg.body())},
			},
		},
		Source: aws.String(s.from),
	})
	return err
}

type SMSSender struct {
	client SNSService
}

func NewSMSSender(client SNSService) *SMSSender {
	return &SMSSender{client: client}
}

func (s *SMSSender) Channel() string { return "sms" }

func (s *SMSSender) Send(ctx context.Context, msg Message) error {
	if msg.Phone == "" {
		return ErrNoRecipient
	}
	_, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(msg.Phone),
		Message:     aws.String(msg.shortBody()),
	})
	return err
}
