package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Client wraps the OpenAI SDK for the two language tasks the app has:
// turning free text into a due time, and classifying bot messages.
type Client struct {
	client *openai.Client
	model  openai.ChatModel
}

// ErrClientNotInitialised is returned when attempting to call the API without a configured client.
var ErrClientNotInitialised = errors.New("openai client not initialised")

// ErrUnparseableTime is returned when text cannot be read as a date/time.
var ErrUnparseableTime = errors.New("could not understand that date/time")

// Intent represents the high-level action inferred from a user message.
type Intent string

const (
	// IntentUnknown indicates the message intent could not be resolved.
	IntentUnknown Intent = "unknown"
	// IntentAddReminder instructs the bot to capture a new reminder.
	IntentAddReminder Intent = "add_reminder"
	// IntentListReminders asks the bot to list current reminders.
	IntentListReminders Intent = "list_reminders"
	// IntentShowReminder asks for the details of one reminder.
	IntentShowReminder Intent = "show_reminder"
	// IntentDeleteReminder requests deletion of a specific reminder.
	IntentDeleteReminder Intent = "delete_reminder"
	// IntentHelp asks for usage guidance.
	IntentHelp Intent = "help"
)

// modelLayout is what the model is asked to answer with.
const modelLayout = "2006-01-02 15:04"

// Layouts accepted without calling the model, most specific first.
var Layouts = []string{
	time.RFC3339,
	"02/01/2006 15:04",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

// New returns an OpenAI client. Without an apiKey the client only parses fixed layouts.
func New(apiKey string) *Client {
	if apiKey == "" {
		return &Client{}
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Client{
		client: &client,
		model:  openai.ChatModelGPT4oMini,
	}
}

// Enabled reports whether API calls are possible.
func (c *Client) Enabled() bool {
	return c != nil && c.client != nil
}

// ParseWhen converts free text such as "25/12/2026 09:00", "18:30" or, with an API key,
// "tomorrow at nine" into a wall-clock time in loc.
func (c *Client) ParseWhen(ctx context.Context, text string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, ErrUnparseableTime
	}

	if t, ok := parseFixed(text, now.In(loc), loc); ok {
		return t, nil
	}
	if !c.Enabled() {
		return time.Time{}, ErrUnparseableTime
	}

	answer, err := c.complete(ctx, 10*time.Second, 16, 0.0,
		fmt.Sprintf("Convert the user's date/time to the format YYYY-MM-DD HH:MM in local wall-clock time. The current local time is %s (%s). Reply with the date/time only, or the word none.",
			now.In(loc).Format(modelLayout), now.In(loc).Weekday()),
		text)
	if err != nil {
		return time.Time{}, err
	}

	t, err := time.ParseInLocation(modelLayout, strings.TrimSpace(answer), loc)
	if err != nil {
		return time.Time{}, ErrUnparseableTime
	}
	return t, nil
}

// ClassifyIntent uses the language model to infer the user's intent.
func (c *Client) ClassifyIntent(ctx context.Context, content string) (Intent, error) {
	if strings.TrimSpace(content) == "" {
		return IntentUnknown, fmt.Errorf("content cannot be empty")
	}
	if !c.Enabled() {
		return IntentUnknown, ErrClientNotInitialised
	}

	label, err := c.complete(ctx, 10*time.Second, 8, 0.0,
		"Classify the user's request for a reminder bot. Reply with exactly one label: add_reminder, list_reminders, show_reminder, delete_reminder, help, or unknown.",
		content)
	if err != nil {
		return IntentUnknown, err
	}

	switch intent := Intent(strings.ToLower(strings.TrimSpace(label))); intent {
	case IntentAddReminder, IntentListReminders, IntentShowReminder, IntentDeleteReminder, IntentHelp:
		return intent, nil
	default:
		return IntentUnknown, nil
	}
}

func (c *Client) complete(ctx context.Context, timeout time.Duration, maxTokens int64, temperature float64, system, user string) (string, error) {
	req := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(system),
					},
				},
			},
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(user),
					},
				},
			},
		},
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion received")
	}
	return resp.Choices[0].Message.Content, nil
}

func parseFixed(text string, now time.Time, loc *time.Location) (time.Time, bool) {
	for _, layout := range Layouts {
		if t, err := time.ParseInLocation(layout, text, loc); err == nil {
			return t, true
		}
	}

	// A bare clock time means the next occurrence of it.
	if clock, err := time.ParseInLocation("15:04", text, loc); err == nil {
		t := time.Date(now.Year(), now.Month(), now.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)
		if !t.After(now) {
			t = t.AddDate(0, 0, 1)
		}
		return t, true
	}
	return time.Time{}, false
}
