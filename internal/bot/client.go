// Package bot speaks the Telegram Bot API over plain HTTP: long-poll update
// fetching, message and file delivery, and the command router on top.
package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// pollTimeout is the long-poll wait passed to getUpdates, in seconds.
const pollTimeout = 30

// Client is a minimal Bot API client. Sends are retried on transient
// failures; rate-limit responses honor the server's retry_after hint.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

func NewClient(token, baseURL string, log *slog.Logger) *Client {
	return &Client{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		// The poll request itself blocks up to pollTimeout.
		http: &http.Client{Timeout: (pollTimeout + 10) * time.Second},
		log:  log,
	}
}

// User is the sender of a message or callback.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type Message struct {
	ID   int64  `json:"message_id"`
	From *User  `json:"from"`
	Chat Chat   `json:"chat"`
	Text string `json:"text"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message"`
	Data    string   `json:"data"`
}

type Update struct {
	ID            int64          `json:"update_id"`
	Message       *Message       `json:"message"`
	CallbackQuery *CallbackQuery `json:"callback_query"`
}

// Button is one inline keyboard button carrying a callback payload.
type Button struct {
	Text string `json:"text"`
	Data string `json:"callback_data"`
}

// Keyboard is an inline keyboard: rows of buttons.
type Keyboard [][]Button

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

func (c *Client) call(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	resp, err := c.http.PostForm(c.methodURL(method), params)
	if err != nil {
		return nil, retry.RetryableError(fmt.Errorf("%s: %w", method, err))
	}
	defer resp.Body.Close()

	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return nil, retry.RetryableError(fmt.Errorf("%s: decode response: %w", method, err))
	}
	if !api.OK {
		err := fmt.Errorf("%s: api error %d: %s", method, api.ErrorCode, api.Description)
		if api.ErrorCode == http.StatusTooManyRequests {
			if api.Parameters != nil && api.Parameters.RetryAfter > 0 {
				select {
				case <-time.After(time.Duration(api.Parameters.RetryAfter) * time.Second):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			return nil, retry.RetryableError(err)
		}
		if api.ErrorCode >= 500 {
			return nil, retry.RetryableError(err)
		}
		return nil, err
	}
	return api.Result, nil
}

// send runs a state-changing API call with a bounded fibonacci backoff.
func (c *Client) send(method string, params url.Values) (json.RawMessage, error) {
	ctx := context.Background()
	var result json.RawMessage
	err := retry.Do(ctx, retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond)), func(ctx context.Context) error {
		var err error
		result, err = c.call(ctx, method, params)
		return err
	})
	return result, err
}

// GetUpdates long-polls for updates past offset. Not retried: the poll loop
// is its own retry.
func (c *Client) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	params := url.Values{}
	params.Set("offset", strconv.FormatInt(offset, 10))
	params.Set("timeout", strconv.Itoa(pollTimeout))
	params.Set("allowed_updates", `["message","callback_query"]`)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("getUpdates"),
		strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("getUpdates: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("getUpdates: %w", err)
	}
	defer resp.Body.Close()

	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return nil, fmt.Errorf("getUpdates: decode response: %w", err)
	}
	if !api.OK {
		return nil, fmt.Errorf("getUpdates: api error %d: %s", api.ErrorCode, api.Description)
	}

	var updates []Update
	if err := json.Unmarshal(api.Result, &updates); err != nil {
		return nil, fmt.Errorf("getUpdates: decode updates: %w", err)
	}
	return updates, nil
}

// SendMessage delivers plain text.
func (c *Client) SendMessage(userID int64, text string) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(userID, 10))
	params.Set("text", text)
	_, err := c.send("sendMessage", params)
	return err
}

// SendKeyboard delivers text with an inline keyboard attached.
func (c *Client) SendKeyboard(userID int64, text string, kb Keyboard) error {
	markup, err := json.Marshal(map[string]any{"inline_keyboard": kb})
	if err != nil {
		return fmt.Errorf("marshal keyboard: %w", err)
	}
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(userID, 10))
	params.Set("text", text)
	params.Set("reply_markup", string(markup))
	_, err = c.send("sendMessage", params)
	return err
}

// SendSticker delivers a sticker by file id.
func (c *Client) SendSticker(userID int64, stickerID string) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(userID, 10))
	params.Set("sticker", stickerID)
	_, err := c.send("sendSticker", params)
	return err
}

// SendDocument uploads and attaches a local file.
func (c *Client) SendDocument(userID int64, path, caption string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	var body strings.Builder
	w := multipart.NewWriter(&body)
	w.WriteField("chat_id", strconv.FormatInt(userID, 10))
	if caption != "" {
		w.WriteField("caption", caption)
	}
	part, err := w.CreateFormFile("document", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish upload: %w", err)
	}

	resp, err := c.http.Post(c.methodURL("sendDocument"), w.FormDataContentType(), strings.NewReader(body.String()))
	if err != nil {
		return fmt.Errorf("sendDocument: %w", err)
	}
	defer resp.Body.Close()

	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return fmt.Errorf("sendDocument: decode response: %w", err)
	}
	if !api.OK {
		return fmt.Errorf("sendDocument: api error %d: %s", api.ErrorCode, api.Description)
	}
	return nil
}

// AnswerCallback acknowledges a button press, optionally with a toast.
func (c *Client) AnswerCallback(callbackID, text string) error {
	params := url.Values{}
	params.Set("callback_query_id", callbackID)
	if text != "" {
		params.Set("text", text)
	}
	_, err := c.send("answerCallbackQuery", params)
	return err
}
