package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"RegimeSentinel/internal/model"
	"RegimeSentinel/internal/strategy"
)

const telegramBaseURL = "https://api.telegram.org"

// TelegramNotifier sends messages via the Telegram Bot API.
type TelegramNotifier struct {
	BaseURL  string
	BotToken string
	ChatID   string
	Client   *http.Client
	// Backoff is the first retry delay; it doubles per attempt.
	Backoff    time.Duration
	MaxRetries int

	log zerolog.Logger
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(botToken, chatID, proxyURL string, log zerolog.Logger) *TelegramNotifier {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &TelegramNotifier{
		BaseURL:  telegramBaseURL,
		BotToken: botToken,
		ChatID:   chatID,
		Client: &http.Client{
			Timeout:   35 * time.Second,
			Transport: transport,
		},
		Backoff:    time.Second,
		MaxRetries: 3,
		log:        log,
	}
}

func (t *TelegramNotifier) Name() string { return "telegram" }

func (t *TelegramNotifier) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", strings.TrimRight(t.BaseURL, "/"), t.BotToken, method)
}

// Send sends a message to the configured chat.
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	payload := map[string]string{
		"chat_id":    t.ChatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// SendWithRetry sends a message with exponential backoff retry.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, text string) error {
	var lastErr error
	for i := 0; i <= t.MaxRetries; i++ {
		err := t.Send(ctx, text)
		if err == nil {
			return nil
		}
		lastErr = err
		if i == t.MaxRetries {
			break
		}
		backoff := t.Backoff * time.Duration(1<<uint(i))
		t.log.Warn().Err(err).
			Int("attempt", i+1).
			Int("max_attempts", t.MaxRetries+1).
			Dur("backoff", backoff).
			Msg("telegram send failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("all %d attempts exhausted: %w", t.MaxRetries+1, lastErr)
}

// Publish sends the daily report and, for a confirmed flip, a separate alert.
// Served snapshots are only announced when stale.
func (t *TelegramNotifier) Publish(ctx context.Context, r Report) error {
	if !r.Fresh {
		if r.Snapshot.Stale {
			return t.SendWithRetry(ctx, FormatStale(r.Snapshot))
		}
		return nil
	}
	if err := t.SendWithRetry(ctx, FormatDailyReport(r)); err != nil {
		return err
	}
	if status := r.Snapshot.FlipWatch; status != model.FlipNone && strategy.ShouldApplyFlip(status) {
		return t.SendWithRetry(ctx, FormatFlipAlert(r.Snapshot))
	}
	return nil
}
