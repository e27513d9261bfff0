// Package payout предоставляет клиент внешней системы переводов.
package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmeshcher/crowdfund-system/internal/model"
)

// Client инкапсулирует HTTP-взаимодействие с системой переводов.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// transferRequest описывает запрос на перевод средств получателю.
// Сумма передаётся в денежных единицах.
type transferRequest struct {
	To     model.Principal `json:"to"`
	Amount float64         `json:"amount"`
}

// NewClient создаёт HTTP-клиент для обращения к системе переводов по указанному адресу.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Transfer переводит получателю указанную сумму в минимальных денежных единицах.
// Перевод считается выполненным только при ответе 200 OK.
func (c *Client) Transfer(ctx context.Context, to model.Principal, amount int64) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("payout client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	url := fmt.Sprintf("%s/api/transfers", base)

	body, err := json.Marshal(transferRequest{
		To:     to,
		Amount: float64(amount) / 100,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}
