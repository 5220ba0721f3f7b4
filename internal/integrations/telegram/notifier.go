package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"solutionhub/internal/domain"
)

const defaultAPIBase = "https://api.telegram.org"

type Notifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Publish forwards connector failures to the chat. Other events are ignored.
func (n *Notifier) Publish(ctx context.Context, event domain.Event) error {
	if event.Type != domain.EventSolutionConnectorFailed {
		return nil
	}
	reason, _ := event.Payload["error"].(string)
	return n.Notify(ctx, fmt.Sprintf("Could not reopen solution %s: %s", event.URI, reason))
}

func (n *Notifier) Notify(ctx context.Context, text string) error {
	if n.botToken == "" || n.chatID == "" || text == "" {
		return nil
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)

	body := map[string]string{
		"chat_id": n.chatID,
		"text":    text,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("telegram sendMessage failed with status %d", resp.StatusCode)
	}
	return nil
}
