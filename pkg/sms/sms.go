// Package sms sends text messages through Twilio.
package sms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nyaruka/phonenumbers"
	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

// ErrInvalidNumber is returned for numbers that cannot be normalized to E.164.
var ErrInvalidNumber = errors.New("invalid phone number")

// ErrNotConfigured is returned by the disabled sender.
var ErrNotConfigured = errors.New("sms provider not configured")

// Sender delivers one message and returns the provider message ID.
type Sender interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// TwilioSender sends through the Twilio Messages API.
type TwilioSender struct {
	client *twilio.RestClient
	from   string
	logger *zap.Logger
}

// NewTwilioSender creates a sender authenticated with the account SID and auth token.
func NewTwilioSender(accountSID, authToken, from string, logger *zap.Logger) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSender{client: client, from: from, logger: logger.Named("twilio")}
}

func (s *TwilioSender) Send(ctx context.Context, to, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &twilioapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	msg, err := s.client.Api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("twilio send failed: %w", err)
	}
	if msg.Sid == nil {
		return "", errors.New("twilio returned no message sid")
	}
	if msg.Status != nil && (*msg.Status == "failed" || *msg.Status == "undelivered") {
		return *msg.Sid, fmt.Errorf("twilio message %s %s", *msg.Sid, *msg.Status)
	}

	s.logger.Debug("SMS queued", zap.String("sid", *msg.Sid))
	return *msg.Sid, nil
}

// DisabledSender rejects every send. Used when Twilio credentials are absent.
type DisabledSender struct{}

func (DisabledSender) Send(context.Context, string, string) (string, error) {
	return "", ErrNotConfigured
}

// FakeSender records messages in memory. Numbers listed in Fail are rejected.
type FakeSender struct {
	mu   sync.Mutex
	Sent []FakeMessage
	Fail map[string]bool
}

// FakeMessage is one message captured by FakeSender.
type FakeMessage struct {
	To   string
	Body string
}

func (f *FakeSender) Send(_ context.Context, to, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail[to] {
		return "", fmt.Errorf("delivery to %s rejected", to)
	}
	f.Sent = append(f.Sent, FakeMessage{To: to, Body: body})
	return fmt.Sprintf("SM%04d", len(f.Sent)), nil
}

var (
	_ Sender = (*TwilioSender)(nil)
	_ Sender = DisabledSender{}
	_ Sender = (*FakeSender)(nil)
)

// defaultRegion applies to numbers written without a country code.
const defaultRegion = "US"

// Normalize converts a phone number to E.164. Numbers without a country code are read as
// US numbers; the result must be a valid number for its region.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNumber)
	}
	num, err := phonenumbers.Parse(s, defaultRegion)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidNumber, raw, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("%w: %q", ErrInvalidNumber, raw)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// NormalizeAll normalizes and de-duplicates recipients, preserving first-seen
// order. Numbers that fail normalization are returned separately.
func NormalizeAll(raw []string) (valid, invalid []string) {
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		n, err := Normalize(r)
		if err != nil {
			invalid = append(invalid, r)
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		valid = append(valid, n)
	}
	return valid, invalid
}
