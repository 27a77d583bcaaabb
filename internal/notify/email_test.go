package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func validMessage() EmailMessage {
	return EmailMessage{
		To:       "anna@example.com",
		ToName:   "Anna Schmidt",
		ReplyTo:  "termine@webklar.com",
		Subject:  "Your appointment",
		Body:     "See you Wednesday",
		HTML:     "<p>See you Wednesday</p>",
		Category: CategoryCustomerConfirmation,
	}
}

func TestEmailMessageValidate(t *testing.T) {
	require.NoError(t, validMessage().Validate())

	htmlOnly := validMessage()
	htmlOnly.Body = ""
	require.NoError(t, htmlOnly.Validate())
	assert.NotEmpty(t, htmlOnly.plainText())

	for name, mutate := range map[string]func(*EmailMessage){
		"recipient": func(m *EmailMessage) { m.To = " " },
		"subject":   func(m *EmailMessage) { m.Subject = "" },
		"body":      func(m *EmailMessage) { m.Body, m.HTML = "", "" },
	} {
		t.Run(name, func(t *testing.T) {
			m := validMessage()
			mutate(&m)
			assert.ErrorIs(t, m.Validate(), ErrInvalidMessage)
		})
	}
}

func TestNewSendGridSender(t *testing.T) {
	assert.Nil(t, NewSendGridSender(SendGridConfig{FromEmail: "termine@webklar.com"}, nil))

	s := NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "termine@webklar.com"}, nil)
	require.NotNil(t, s)
	assert.Equal(t, "Webklar", s.from.Name)

	s = NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "termine@webklar.com", FromName: "Webklar Team"}, nil)
	assert.Equal(t, "Webklar Team", s.from.Name)
}

func TestSendGridSender_BuildMail(t *testing.T) {
	s := NewSendGridSender(SendGridConfig{APIKey: "k", FromEmail: "termine@webklar.com"}, nil)
	m := s.buildMail(validMessage())

	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "anna@example.com", m.Personalizations[0].To[0].Address)
	require.Len(t, m.Content, 2)
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Equal(t, "text/html", m.Content[1].Type)
	require.NotNil(t, m.ReplyTo)
	assert.Equal(t, "termine@webklar.com", m.ReplyTo.Address)
	assert.Equal(t, []string{CategoryCustomerConfirmation}, m.Categories)
}

func TestSendGridSender_Send_NotConfigured(t *testing.T) {
	sender := &SendGridSender{}
	assert.Error(t, sender.Send(context.Background(), validMessage()))
}

func TestSESSender_Send(t *testing.T) {
	fake := &fakeSES{}
	s := NewSESSender(fake, SESConfig{FromEmail: "termine@webklar.com", ConfigurationSet: "booking"}, nil)
	require.NotNil(t, s)

	require.NoError(t, s.Send(context.Background(), validMessage()))

	in := fake.input
	require.NotNil(t, in)
	assert.Equal(t, `"Webklar" <termine@webklar.com>`, aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{`"Anna Schmidt" <anna@example.com>`}, in.Destination.ToAddresses)
	assert.Equal(t, []string{"termine@webklar.com"}, in.ReplyToAddresses)
	assert.Equal(t, "booking", aws.ToString(in.ConfigurationSetName))
	require.Len(t, in.EmailTags, 1)
	assert.Equal(t, CategoryCustomerConfirmation, aws.ToString(in.EmailTags[0].Value))
	assert.Equal(t, "See you Wednesday", aws.ToString(in.Content.Simple.Body.Text.Data))
	assert.NotNil(t, in.Content.Simple.Body.Html)
}

func TestSESSender_SendErrors(t *testing.T) {
	assert.Nil(t, NewSESSender(nil, SESConfig{}, nil))
	assert.Error(t, (&SESSender{}).Send(context.Background(), validMessage()))

	fake := &fakeSES{err: errors.New("throttled")}
	s := NewSESSender(fake, SESConfig{FromEmail: "termine@webklar.com"}, nil)
	err := s.Send(context.Background(), validMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")

	bad := validMessage()
	bad.To = ""
	fake.input = nil
	assert.ErrorIs(t, s.Send(context.Background(), bad), ErrInvalidMessage)
	assert.Nil(t, fake.input)
}

func TestStubEmailSender_RecordsMessages(t *testing.T) {
	sender := NewStubEmailSender(nil)
	require.NoError(t, sender.Send(context.Background(), validMessage()))
	assert.ErrorIs(t, sender.Send(context.Background(), EmailMessage{To: "x@example.com"}), ErrInvalidMessage)

	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "anna@example.com", sent[0].To)
}
