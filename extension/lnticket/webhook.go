package lnticket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

const webhookTimeout = 5 * time.Second

type webhookPayload struct {
	Form        string `json:"form"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Content     string `json:"content"`
	Sats        int64  `json:"sats"`
	PaymentHash string `json:"payment_hash"`
}

type notifier struct {
	client *http.Client
}

func newNotifier() *notifier {
	return &notifier{client: cleanhttp.DefaultPooledClient()}
}

// ticketPaid posts the paid ticket to the form's webhook.
func (n *notifier) ticketPaid(ctx context.Context, f *Form, t *Ticket) error {
	body, err := json.Marshal(webhookPayload{
		Form:        f.ID,
		Name:        t.Name,
		Email:       t.Email,
		Content:     t.Text,
		Sats:        t.Sats,
		PaymentHash: t.ID,
	})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.Webhook, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook %s: status %d", f.Webhook, resp.StatusCode)
	}
	return nil
}
