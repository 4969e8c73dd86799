// Package remote talks to the session server over HTTP and reads its
// websocket change feed.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/DoyleJ11/abluka/internal/store"
	"github.com/DoyleJ11/abluka/internal/types"
)

type Client struct {
	base string
	http *http.Client
	log  *zap.Logger
}

// New returns a client for the server at base, e.g. http://localhost:8080.
func New(base string, httpClient *http.Client, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{base: strings.TrimRight(base, "/"), http: httpClient, log: log}
}

func (c *Client) Create(ctx context.Context, rec store.Record) error {
	var resp types.CreateSessionResponse
	return c.do(ctx, http.MethodPost, "/sessions", rec, &resp)
}

func (c *Client) Get(ctx context.Context, code string) (store.Record, error) {
	var rec store.Record
	err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(code), nil, &rec)
	return rec, err
}

func (c *Client) Update(ctx context.Context, code string, p store.Patch) (store.Record, error) {
	var rec store.Record
	err := c.do(ctx, http.MethodPatch, "/sessions/"+url.PathEscape(code), p, &rec)
	return rec, err
}

func (c *Client) Delete(ctx context.Context, code string) error {
	return c.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(code), nil, nil)
}

// Subscribe dials the change feed. The returned channel closes when ctx
// ends, the session is deleted or the connection drops.
func (c *Client) Subscribe(ctx context.Context, code string) (<-chan store.Change, error) {
	u, err := url.Parse(c.base + "/ws")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.RawQuery = url.Values{"code": {code}}.Encode()

	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{HTTPClient: c.http})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("dial feed: %w", err)
	}

	out := make(chan store.Change, 16)
	go func() {
		defer close(out)
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		for {
			var msg types.ServerMessage
			if err := wsjson.Read(ctx, conn, &msg); err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					if ctx.Err() == nil {
						c.log.Debug("feed read failed", zap.String("code", code), zap.Error(err))
					}
				}
				return
			}
			if msg.Record == nil {
				continue
			}

			ch := store.Change{Record: *msg.Record, Deleted: msg.Type == types.MsgSessionDeleted}
			select {
			case out <- ch:
			case <-ctx.Done():
				return
			}
			if ch.Deleted {
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound:
		return store.ErrNotFound
	case http.StatusConflict:
		return store.ErrExists
	}
	if resp.StatusCode >= 300 {
		var e types.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, e.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
