// Command loadtest drives a running server with pairs of users chatting
// over WebSockets. Each pair signs up, opens a contact, joins its room from
// both sides and exchanges send_message commands.
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"go-messenger/internal/logging"
)

type options struct {
	baseURL  string
	pairs    int
	messages int
	interval time.Duration
	password string
}

type stats struct {
	sent     atomic.Int64
	acked    atomic.Int64
	received atomic.Int64
	failed   atomic.Int64
}

type envelope[T any] struct {
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type account struct {
	Token string `json:"token"`
	User  struct {
		ID int64 `json:"id"`
	} `json:"user"`
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

var client = &http.Client{Timeout: 15 * time.Second}

func main() {
	var opts options
	flag.StringVar(&opts.baseURL, "base", "http://localhost:8080", "server base URL")
	flag.IntVar(&opts.pairs, "pairs", 50, "number of chatting user pairs")
	flag.IntVar(&opts.messages, "messages", 20, "messages sent by each user")
	flag.DurationVar(&opts.interval, "interval", 10*time.Millisecond, "pause between messages")
	flag.StringVar(&opts.password, "password", "password123", "password for generated accounts")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logging.Init(logging.Config{Level: *logLevel, Format: "console"})
	logging.Info().Int("users", opts.pairs*2).Int("messages_each", opts.messages).Msg("starting load test")

	run := uuid.NewString()[:8]
	st := &stats{}
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < opts.pairs; i++ {
		wg.Add(1)
		go func(pair int) {
			defer wg.Done()
			if err := runPair(opts, st, fmt.Sprintf("lt_%s_%d", run, pair)); err != nil {
				st.failed.Add(1)
				logging.Warn().Err(err).Int("pair", pair).Msg("pair failed")
			}
		}(i)
	}
	wg.Wait()

	elapsed := time.Since(start)
	logging.Info().
		Int64("sent", st.sent.Load()).
		Int64("acked", st.acked.Load()).
		Int64("received", st.received.Load()).
		Int64("failed_pairs", st.failed.Load()).
		Dur("elapsed", elapsed).
		Float64("msgs_per_sec", float64(st.acked.Load())/elapsed.Seconds()).
		Msg("load test complete")
}

func runPair(opts options, st *stats, prefix string) error {
	a, err := signUp(opts, prefix+"_a")
	if err != nil {
		return err
	}
	b, err := signUp(opts, prefix+"_b")
	if err != nil {
		return err
	}

	var started envelope[struct {
		Contact struct {
			ID int64 `json:"id"`
		} `json:"contact"`
	}]
	err = postJSON(opts.baseURL+"/api/contacts", a.Token, map[string]any{
		"secondPersonId": b.User.ID,
		"content":        "hello from " + prefix,
	}, &started)
	if err != nil {
		return fmt.Errorf("start contact: %w", err)
	}
	chatID := started.Data.Contact.ID

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, acc := range []account{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = chat(opts, st, acc, chatID)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func signUp(opts options, username string) (account, error) {
	var res envelope[account]
	err := postJSON(opts.baseURL+"/api/users/sign-up", "", map[string]string{
		"username": username,
		"email":    username + "@loadtest.local",
		"password": opts.password,
	}, &res)
	if err != nil {
		return account{}, fmt.Errorf("sign up %s: %w", username, err)
	}
	return res.Data, nil
}

// chat connects one user, joins the chat room and sends opts.messages
// messages, then waits briefly for the remaining acks and broadcasts.
func chat(opts options, st *stats, acc account, chatID int64) error {
	wsURL := strings.Replace(opts.baseURL, "http", "ws", 1) + "/ws?token=" + url.QueryEscape(acc.Token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			switch f.Event {
			case "ack":
				st.acked.Add(1)
			case "receive_message":
				st.received.Add(1)
			case "error":
				logging.Debug().RawJSON("error", f.Data).Int64("user_id", acc.User.ID).Msg("command rejected")
			}
		}
	}()

	if err := send(conn, "join_chat", chatID); err != nil {
		return err
	}
	for i := 0; i < opts.messages; i++ {
		err := send(conn, "send_message", map[string]any{
			"chatId":  chatID,
			"content": fmt.Sprintf("load test message %d from %d", i, acc.User.ID),
		})
		if err != nil {
			return err
		}
		st.sent.Add(1)
		time.Sleep(opts.interval)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
	return nil
}

func send(conn *websocket.Conn, event string, data any) error {
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(map[string]any{"event": event, "data": data}); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}
	return nil
}

func postJSON(endpoint, token string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e struct {
			Error struct {
				Kind    string `json:"kind"`
				Message string `json:"message"`
			} `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s: %d %s %s", endpoint, resp.StatusCode, e.Error.Kind, e.Error.Message)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
