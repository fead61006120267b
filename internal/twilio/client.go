package twilio

import (
	"context"
	"fmt"
	"strings"

	"github.com/pathakanu/remindme/internal/notifier"
	"github.com/sirupsen/logrus"
	twilio "github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// messageAPI is the slice of the Twilio REST API the client calls.
type messageAPI interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// Client delivers reminder alerts as WhatsApp messages.
type Client struct {
	api          messageAPI
	fromWhatsApp string
	toWhatsApp   string
	logger       logrus.FieldLogger
}

// New creates a Twilio client bound to the configured sender and recipient numbers.
func New(accountSID, authToken, fromWhatsApp, toWhatsApp string, log logrus.FieldLogger) *Client {
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{Username: accountSID, Password: authToken})
	return &Client{
		api:          rest.Api,
		fromWhatsApp: fromWhatsApp,
		toWhatsApp:   toWhatsApp,
		logger:       log,
	}
}

// Send implements notifier.Sender.
func (c *Client) Send(_ context.Context, alert notifier.Alert) error {
	return c.SendWhatsAppMessage(c.toWhatsApp, FormatAlert(alert))
}

// FormatAlert renders an alert as a WhatsApp message body.
func FormatAlert(alert notifier.Alert) string {
	return fmt.Sprintf("*%s*\n%s\n\nReply \"show %d\" to %s.", alert.Title, alert.Body, alert.Key, alert.TapTarget)
}

// SendWhatsAppMessage sends a WhatsApp message via Twilio's API.
func (c *Client) SendWhatsAppMessage(to, body string) error {
	if c.api == nil {
		return fmt.Errorf("twilio client not initialised")
	}

	sender := normalizeWhatsAppAddress(c.fromWhatsApp)
	if sender == "" {
		return fmt.Errorf("twilio sender WhatsApp number is not configured")
	}

	recipient := normalizeWhatsAppAddress(to)
	if recipient == "" {
		return fmt.Errorf("recipient number missing or invalid")
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(recipient)
	params.SetFrom(sender)
	params.SetBody(body)

	resp, err := c.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio send message error: %w", err)
	}

	sid := ""
	if resp != nil && resp.Sid != nil {
		sid = *resp.Sid
	}
	c.logger.WithFields(logrus.Fields{"to": recipient, "sid": sid}).Info("twilio: message sent")
	return nil
}

func normalizeWhatsAppAddress(number string) string {
	trimmed := strings.TrimSpace(number)
	switch {
	case trimmed == "":
		return ""
	case strings.HasPrefix(trimmed, "whatsapp:"):
		return trimmed
	case strings.HasPrefix(trimmed, "+"):
		return "whatsapp:" + trimmed
	default:
		return "whatsapp:+" + trimmed
	}
}
