package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"clientportal/config"
	"clientportal/pkg/circuitbreaker"
)

// Client calls the external templated email-delivery API. The portal never
// renders HTML itself, it only forwards template name and data.
type Client struct {
	baseURL    string
	apiKey     string
	from       string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
}

func NewClient(cfg config.MailerConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		from:    cfg.FromAddress,
		httpClient: &http.Client{
			Timeout: 5 * time.Second, // 超时，避免 worker 卡死
		},
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig()),
	}
}

type sendRequest struct {
	From         string          `json:"from"`
	To           []string        `json:"to"`
	Subject      string          `json:"subject"`
	TemplateName string          `json:"template_name"`
	TemplateData json.RawMessage `json:"template_data"`
}

// Send forwards one templated email to the delivery service.
func (c *Client) Send(ctx context.Context, to []string, subject, templateName string, templateData json.RawMessage) error {
	return c.breaker.Execute(func() error {
		return c.send(ctx, to, subject, templateName, templateData)
	})
}

func (c *Client) send(ctx context.Context, to []string, subject, templateName string, templateData json.RawMessage) error {
	body, err := json.Marshal(sendRequest{
		From:         c.from,
		To:           to,
		Subject:      subject,
		TemplateName: templateName,
		TemplateData: templateData,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/send", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call mailer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		// 可重试错误
		return fmt.Errorf("mailer 5xx: %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("mailer error: %d", resp.StatusCode)
	}
	return nil
}
