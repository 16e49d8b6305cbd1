package notifier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// CommandHandler is called when a user command is received.
type CommandHandler func(ctx context.Context, command string) string

// Command is one text message taken from a getUpdates response.
type Command struct {
	UpdateID int64
	ChatID   string
	Text     string
}

// ParseUpdates extracts text messages from a getUpdates body and returns
// the offset to poll from next.
func ParseUpdates(body []byte, offset int64) ([]Command, int64, error) {
	if !gjson.ValidBytes(body) {
		return nil, offset, fmt.Errorf("decode updates: invalid json")
	}
	res := gjson.ParseBytes(body)
	if !res.Get("ok").Bool() {
		return nil, offset, fmt.Errorf("getUpdates: %s", res.Get("description").String())
	}
	var out []Command
	res.Get("result").ForEach(func(_, u gjson.Result) bool {
		id := u.Get("update_id").Int()
		if id >= offset {
			offset = id + 1
		}
		text := strings.TrimSpace(u.Get("message.text").String())
		if text == "" {
			return true
		}
		out = append(out, Command{UpdateID: id, ChatID: u.Get("message.chat.id").String(), Text: text})
		return true
	})
	return out, offset, nil
}

// StartPolling long-polls for commands from the configured chat and
// replies with the handler's answer. Blocks until ctx is cancelled.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler CommandHandler) {
	log := zerolog.Ctx(ctx)
	var offset int64
	client := &http.Client{Timeout: 35 * time.Second, Transport: t.Client.Transport}

	pause := func() bool {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(5 * time.Second):
			return true
		}
	}

	for {
		if ctx.Err() != nil {
			log.Info().Msg("telegram polling stopped")
			return
		}

		apiURL := fmt.Sprintf("%s?offset=%d&timeout=30", t.endpoint("getUpdates"), offset)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			log.Error().Err(err).Msg("create polling request")
			return
		}
		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("polling request failed")
			if !pause() {
				return
			}
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			log.Warn().Err(err).Msg("read polling response")
			continue
		}

		cmds, next, err := ParseUpdates(body, offset)
		if err != nil {
			log.Warn().Err(err).Msg("decode polling response")
			if !pause() {
				return
			}
			continue
		}
		offset = next
		for _, c := range cmds {
			if c.ChatID != t.ChatID {
				log.Warn().Str("chat", c.ChatID).Msg("ignoring command from unknown chat")
				continue
			}
			log.Info().Str("command", c.Text).Msg("received command")
			if reply := handler(ctx, c.Text); reply != "" {
				if err := t.Send(ctx, reply); err != nil {
					log.Error().Err(err).Msg("send reply")
				}
			}
		}
	}
}
