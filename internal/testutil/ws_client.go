package testutil

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dom/dataroom/internal/events"
	gorillaWS "github.com/gorilla/websocket"
)

// WSClient is a test client for the file events stream
type WSClient struct {
	t        *testing.T
	conn     *gorillaWS.Conn
	messages chan *events.Event
	done     chan struct{}
	mu       sync.Mutex
}

// NewWSClient connects to url and starts reading events
func NewWSClient(t *testing.T, url string) *WSClient {
	t.Helper()

	dialer := *gorillaWS.DefaultDialer
	dialer.HandshakeTimeout = 5 * time.Second

	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to connect to websocket: %v", err)
	}

	client := &WSClient{
		t:        t,
		conn:     conn,
		messages: make(chan *events.Event, 100),
		done:     make(chan struct{}),
	}

	go client.readPump()

	t.Cleanup(client.Close)

	return client
}

func (c *WSClient) readPump() {
	defer close(c.messages)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var evt events.Event
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}

		select {
		case c.messages <- &evt:
		case <-c.done:
			return
		}
	}
}

// WaitForEvent returns the next event of the given type, skipping others
func (c *WSClient) WaitForEvent(eventType events.EventType, timeout time.Duration) *events.Event {
	c.t.Helper()

	deadline := time.After(timeout)
	for {
		select {
		case evt, ok := <-c.messages:
			if !ok {
				c.t.Fatalf("connection closed while waiting for %s", eventType)
				return nil
			}
			if evt.Type == eventType {
				return evt
			}
		case <-deadline:
			c.t.Fatalf("timed out waiting for %s", eventType)
			return nil
		}
	}
}

// Close closes the WebSocket connection gracefully
func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return
	default:
		close(c.done)
		c.conn.WriteMessage(gorillaWS.CloseMessage, gorillaWS.FormatCloseMessage(gorillaWS.CloseNormalClosure, ""))
		c.conn.Close()
	}
}
