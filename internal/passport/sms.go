package passport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"starpass.org/internal/obs"
)

// Gateway delivers verification codes. Implementations own their retries;
// a returned error surfaces to the caller as ERR_INTERNAL.
type Gateway interface {
	SendVerificationCode(ctx context.Context, phone, code string) error
}

// ConsoleGateway logs the masked delivery instead of sending anything. Used
// in development and tests.
type ConsoleGateway struct{}

func (ConsoleGateway) SendVerificationCode(_ context.Context, phone, code string) error {
	obs.Event("info", "sendVerificationCode", map[string]any{
		"phone": MaskPhone(phone),
		"code":  MaskCode(code),
	})
	return nil
}

// HTTPGateway posts {phone, code} to an external SMS relay.
type HTTPGateway struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPGateway(url, apiKey string) *HTTPGateway {
	return &HTTPGateway{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (g *HTTPGateway) SendVerificationCode(ctx context.Context, phone, code string) error {
	if g.url == "" {
		return E(CodeInternal, "sms gateway not configured")
	}
	body, err := json.Marshal(map[string]string{"phone": phone, "code": code})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("x-api-key", g.apiKey)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		obs.Event("error", "sms gateway request failed", map[string]any{
			"phone": MaskPhone(phone),
			"error": err.Error(),
		})
		return E(CodeInternal, "sms gateway error")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		obs.Event("error", "sms gateway rejected send", map[string]any{
			"phone":  MaskPhone(phone),
			"status": resp.StatusCode,
		})
		return E(CodeInternal, "sms gateway error")
	}
	return nil
}
