package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
)

// apiClient talks to the task service REST and websocket endpoints.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// task mirrors the fields of the service's task document the CLI prints.
type task struct {
	ID                  string   `json:"_id"`
	Type                string   `json:"type"`
	Status              string   `json:"status"`
	HTTPStatus          int      `json:"httpStatus"`
	PercentageCompleted *float64 `json:"percentageCompleted,omitempty"`
	Duration            *int64   `json:"duration,omitempty"`
	Result              string   `json:"result,omitempty"`
	ErrorReport         string   `json:"errorReport,omitempty"`
}

type notification struct {
	ID         string          `json:"_id"`
	Owner      string          `json:"owner"`
	From       string          `json:"from,omitempty"`
	Type       string          `json:"type"`
	Viewed     bool            `json:"viewed"`
	Body       string          `json:"body,omitempty"`
	Resolution string          `json:"resolution,omitempty"`
	Meta       json.RawMessage `json:"meta,omitempty"`
}

// page is one page of a list endpoint plus the "total" header.
type page[T any] struct {
	Items []T
	Total int64
}

func (c *apiClient) client() *http.Client {
	if c.http != nil {
		return c.http
	}
	return http.DefaultClient
}

func (c *apiClient) do(ctx context.Context, method, path string, query url.Values, body, out any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}
	u := strings.TrimRight(c.baseURL, "/") + "/api/v1" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return resp, fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, e.Error)
		}
		return resp, fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return resp, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp, nil
}

func (c *apiClient) submit(ctx context.Context, path string, req any) (*task, error) {
	var t task
	if _, err := c.do(ctx, http.MethodPost, "/validation/"+path, nil, req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *apiClient) getTask(ctx context.Context, id string) (*task, error) {
	var t task
	if _, err := c.do(ctx, http.MethodGet, "/task/"+url.PathEscape(id), nil, nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *apiClient) listTasks(ctx context.Context, status string, start, limit int) (page[task], error) {
	q := url.Values{"start": {strconv.Itoa(start)}, "max": {strconv.Itoa(limit)}}
	if status != "" {
		q.Set("status", status)
	}
	return list[task](ctx, c, "/task", q)
}

func (c *apiClient) listNotifications(ctx context.Context, query string, start, limit int) (page[notification], error) {
	q := url.Values{"start": {strconv.Itoa(start)}, "max": {strconv.Itoa(limit)}}
	if query != "" {
		q.Set("query", query)
	}
	return list[notification](ctx, c, "/notification", q)
}

func (c *apiClient) updateNotification(ctx context.Context, n notification) (*notification, error) {
	var out notification
	if _, err := c.do(ctx, http.MethodPut, "/notification", nil, n, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func list[T any](ctx context.Context, c *apiClient, path string, q url.Values) (page[T], error) {
	var p page[T]
	resp, err := c.do(ctx, http.MethodGet, path, q, nil, &p.Items)
	if err != nil {
		return p, err
	}
	if total := resp.Header.Get("total"); total != "" {
		p.Total, _ = strconv.ParseInt(total, 10, 64)
	}
	return p, nil
}

// subscribe opens the task event websocket.
func (c *apiClient) subscribe(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(strings.TrimRight(c.baseURL, "/") + "/ws/subscribe")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", u, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}
	return conn, nil
}
