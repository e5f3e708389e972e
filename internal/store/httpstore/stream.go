package httpstore

import (
	"bufio"
	"context"
	"encoding/json/v2"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/cryptoshelf/shelfsync/internal/store"
)

// Event names sent by the shelfd change stream.
const (
	EventConnected = "connected"
	EventChange    = "change"
	EventHeartbeat = "heartbeat"
)

// Subscribe opens the SSE change stream filtered to table. It returns once
// the server has acknowledged the connection, so changes committed after
// Subscribe returns are delivered.
func (c *Client) Subscribe(ctx context.Context, table store.Table) (store.Subscription, error) {
	if table != "" && !table.Valid() {
		return nil, fmt.Errorf("%w: %q", store.ErrUnknownTable, table)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, store.ErrClosed
	}
	c.mu.Unlock()

	streamCtx, cancel := context.WithCancel(ctx)
	endpoint := c.endpoint("/api/v1/changes")
	if table != "" {
		endpoint += "?table=" + url.QueryEscape(string(table))
	}
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		cancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, store.Unavailable("subscribe", table, err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		cancel()
		return nil, decodeError(resp.StatusCode, raw)
	}

	events := newEventReader(resp.Body)
	name, _, err := events.next()
	if err != nil || name != EventConnected {
		resp.Body.Close()
		cancel()
		if err == nil {
			err = fmt.Errorf("unexpected first event %q", name)
		}
		return nil, store.Unavailable("subscribe", table, err)
	}

	sub := &subscription{
		client: c,
		ch:     make(chan store.Change, store.DefaultSubscriberBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		resp.Body.Close()
		cancel()
		return nil, store.ErrClosed
	}
	c.subs[sub] = struct{}{}
	c.mu.Unlock()

	go sub.run(streamCtx, resp.Body, events)
	return sub, nil
}

type subscription struct {
	client *Client
	ch     chan store.Change
	cancel context.CancelFunc
	done   chan struct{}

	once sync.Once
	mu   sync.Mutex
	err  error
}

func (s *subscription) Events() <-chan store.Change { return s.ch }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the stream and waits for the reader to exit.
func (s *subscription) Close() {
	s.finish(nil)
}

// finish records why the stream ended (first caller wins), cancels the
// request and waits for run to close the channel.
func (s *subscription) finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		s.cancel()
	})
	<-s.done
}

func (s *subscription) run(ctx context.Context, body io.ReadCloser, events *eventReader) {
	defer close(s.done)
	defer close(s.ch)
	defer body.Close()
	defer s.client.forget(s)

	for {
		name, data, err := events.next()
		if err != nil {
			if ctx.Err() == nil {
				// The server went away; Close and context end are not errors.
				s.once.Do(func() {
					s.mu.Lock()
					s.err = store.Unavailable("stream", "", err)
					s.mu.Unlock()
					s.cancel()
				})
			}
			return
		}
		if name != EventChange {
			continue
		}

		var change store.Change
		if err := json.Unmarshal([]byte(data), &change); err != nil {
			s.client.logger.Warn("dropping malformed change event", "error", err)
			continue
		}
		change, err = coerceChange(change)
		if err != nil {
			s.client.logger.Warn("dropping change for unknown table", "error", err)
			continue
		}

		select {
		case s.ch <- change:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) forget(s *subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, s)
}

// eventReader parses the text/event-stream framing: "event:" and "data:"
// fields terminated by a blank line. Comments and other fields are ignored.
type eventReader struct {
	sc *bufio.Scanner
}

func newEventReader(r io.Reader) *eventReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 8<<20)
	return &eventReader{sc: sc}
}

func (r *eventReader) next() (name, data string, err error) {
	var lines []string
	for r.sc.Scan() {
		line := r.sc.Text()
		if line == "" {
			if name == "" && len(lines) == 0 {
				continue
			}
			if name == "" {
				name = "message"
			}
			return name, strings.Join(lines, "\n"), nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
		case "data":
			lines = append(lines, value)
		}
	}
	if err := r.sc.Err(); err != nil {
		return "", "", err
	}
	return "", "", io.EOF
}
