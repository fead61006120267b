package twilio

import (
	"context"
	"errors"
	"testing"

	"github.com/pathakanu/remindme/internal/logger"
	"github.com/pathakanu/remindme/internal/notifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeAPI struct {
	params []*openapi.CreateMessageParams
	err    error
}

func (f *fakeAPI) CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error) {
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &openapi.ApiV2010Message{Sid: &sid}, nil
}

func newTestClient(api messageAPI, from, to string) *Client {
	return &Client{api: api, fromWhatsApp: from, toWhatsApp: to, logger: logger.Discard()}
}

func TestNormalizeWhatsAppAddress(t *testing.T) {
	cases := map[string]string{
		"":                   "",
		"   ":                "",
		"+15551234":          "whatsapp:+15551234",
		"15551234":           "whatsapp:+15551234",
		"whatsapp:+15551234": "whatsapp:+15551234",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeWhatsAppAddress(in), in)
	}
}

func TestSendAlert(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(api, "+1000", "2000")

	alert := notifier.Alert{Key: 4, Title: "Meeting", Body: "Stand-up", TapTarget: notifier.TapTarget(4)}
	require.NoError(t, c.Send(context.Background(), alert))

	require.Len(t, api.params, 1)
	p := api.params[0]
	assert.Equal(t, "whatsapp:+2000", *p.To)
	assert.Equal(t, "whatsapp:+1000", *p.From)
	assert.Equal(t, "*Meeting*\nStand-up\n\nReply \"show 4\" to open reminder 4.", *p.Body)
}

func TestSendErrors(t *testing.T) {
	assert.Error(t, newTestClient(nil, "+1", "+2").SendWhatsAppMessage("+2", "x"))
	assert.Error(t, newTestClient(&fakeAPI{}, "", "+2").SendWhatsAppMessage("+2", "x"))
	assert.Error(t, newTestClient(&fakeAPI{}, "+1", "").SendWhatsAppMessage("", "x"))

	boom := errors.New("rate limited")
	err := newTestClient(&fakeAPI{err: boom}, "+1", "+2").SendWhatsAppMessage("+2", "x")
	assert.ErrorIs(t, err, boom)
}
