// Package externalmsg sends rendered text notifications to a phone number
// through an external messaging provider, per §4.E.
package externalmsg

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

var nonDigits = regexp.MustCompile(`[^\d+]`)

// FormatE164 normalizes phone into E.164 form, prefixing defaultCountryCode
// for bare 10-digit national numbers, per §4.E.
func FormatE164(phone, defaultCountryCode string) string {
	cleaned := nonDigits.ReplaceAllString(strings.TrimSpace(phone), "")
	if strings.HasPrefix(cleaned, "+") {
		return cleaned
	}
	if len(cleaned) == 10 {
		return "+" + strings.TrimPrefix(defaultCountryCode, "+") + cleaned
	}
	return "+" + cleaned
}

// Sender is the external-message adapter contract of §4.E.
type Sender interface {
	Send(ctx context.Context, phone, text string) (bool, error)
}

// HTTPSender posts to an external messaging provider's HTTP API. No
// messaging-provider client library appears anywhere in the retrieval
// pack, so this adapter is built directly on net/http, the one ambient
// concern in this module with no ecosystem library to wire (see
// DESIGN.md).
type HTTPSender struct {
	Endpoint   string
	APIKey     string
	Client     *http.Client
	DefaultCC  string
}

// NewHTTPSender builds an HTTPSender with a 10s per-attempt timeout, the
// "implicit per-attempt timeout" §5 calls for on the external-message
// call.
func NewHTTPSender(endpoint, apiKey, defaultCountryCode string) *HTTPSender {
	return &HTTPSender{
		Endpoint:  endpoint,
		APIKey:    apiKey,
		DefaultCC: defaultCountryCode,
		Client:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPSender) Send(ctx context.Context, phone, text string) (bool, error) {
	formatted := FormatE164(phone, s.DefaultCC)
	body := strings.NewReader(fmt.Sprintf(`{"to":%q,"text":%q}`, formatted, text))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, body)
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	resp, err := s.Client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return true, nil
	}
	return false, fmt.Errorf("external message provider returned status %d", resp.StatusCode)
}
