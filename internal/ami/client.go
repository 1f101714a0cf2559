package ami

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrClosed is returned by Send once the connection to the switch is gone.
var ErrClosed = errors.New("ami: connection closed")

// ResponseError is a "Response: Error" answer from the switch.
type ResponseError struct {
	Action  string
	Message string
}

func (e *ResponseError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ami %s failed", e.Action)
	}
	return fmt.Sprintf("ami %s failed: %s", e.Action, e.Message)
}

// Response is the answer to an Action. List actions (CoreShowChannels,
// QueueStatus, SIPpeers...) carry their events in Events, without the
// trailing *Complete marker.
type Response struct {
	Event
	Events []Event
}

// Message returns the Message header of the response.
func (r *Response) Message() string {
	return r.Get("Message")
}

// Success reports whether the switch accepted the action.
func (r *Response) Success() bool {
	return !strings.EqualFold(r.Get("Response"), "Error")
}

type pendingAction struct {
	name string
	resp *Response
	list bool
	done chan struct{}
}

// Client is a single AMI session. It correlates responses to actions by
// ActionID and forwards everything else on Events.
type Client struct {
	conn    io.ReadWriteCloser
	logger  *zap.Logger
	timeout time.Duration

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]*pendingAction

	qmu    sync.Mutex
	queue  []Event
	notify chan struct{}
	events chan Event

	done      chan struct{}
	stop      chan struct{}
	closeOnce sync.Once
	err       error
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithActionTimeout bounds how long Send waits for a response when the
// caller's context has no deadline of its own.
func WithActionTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// Dial connects to the AMI port and starts reading.
func Dial(ctx context.Context, addr string, opts ...ClientOption) (*Client, error) {
	var d net.Dialer
	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, err := d.DialContext(dctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial AMI: %w", err)
	}
	return NewClient(conn, opts...), nil
}

// NewClient wraps an established connection. The banner line is skipped by the parser.
func NewClient(conn io.ReadWriteCloser, opts ...ClientOption) *Client {
	c := &Client{
		conn:    conn,
		logger:  zap.NewNop(),
		timeout: 10 * time.Second,
		pending: make(map[string]*pendingAction),
		notify:  make(chan struct{}, 1),
		events:  make(chan Event),
		done:    make(chan struct{}),
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	go c.pump()
	return c
}

// Login authenticates the session.
func (c *Client) Login(ctx context.Context, username, secret string) error {
	_, err := c.Send(ctx, NewAction("Login", "Username", username, "Secret", secret, "Events", "on"))
	if err != nil {
		return fmt.Errorf("AMI login: %w", err)
	}
	return nil
}

// Events delivers unsolicited events in arrival order. It is closed when
// the session ends.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Done is closed when the read loop exits.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the read loop exited, if it has.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close terminates the session.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stop)
		err = c.conn.Close()
	})
	return err
}

// Send issues an action and waits for its response. A "Response: Error"
// answer is returned as *ResponseError together with the response.
func (c *Client) Send(ctx context.Context, a Action) (*Response, error) {
	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	id := uuid.NewString()
	p := &pendingAction{name: a.Name, done: make(chan struct{})}

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return nil, ErrClosed
	default:
	}
	c.pending[id] = p
	c.mu.Unlock()

	c.writeMu.Lock()
	_, err := c.conn.Write(a.Marshal(id))
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return nil, fmt.Errorf("sending %s: %w", a.Name, err)
	}

	select {
	case <-p.done:
	case <-ctx.Done():
		c.forget(id)
		return nil, fmt.Errorf("waiting for %s: %w", a.Name, ctx.Err())
	case <-c.done:
		select {
		case <-p.done:
		default:
			return nil, ErrClosed
		}
	}

	if p.resp == nil {
		return nil, ErrClosed
	}
	if !p.resp.Success() {
		return p.resp, &ResponseError{Action: a.Name, Message: p.resp.Message()}
	}
	return p.resp, nil
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) readLoop() {
	parser := NewParser(c.conn)
	for {
		evt, ok := parser.Next()
		if !ok {
			break
		}
		c.route(evt)
	}

	c.mu.Lock()
	c.err = parser.Err()
	if c.err == nil {
		c.err = io.EOF
	}
	for id := range c.pending {
		delete(c.pending, id)
	}
	close(c.done)
	c.mu.Unlock()
	c.logger.Info("AMI read loop stopped", zap.Error(c.err))
}

func (c *Client) route(evt Event) {
	id := evt.ActionID()

	if evt.IsResponse() {
		c.mu.Lock()
		p := c.pending[id]
		if p == nil {
			c.mu.Unlock()
			c.logger.Debug("response without pending action", zap.String("action_id", id))
			return
		}
		p.resp = &Response{Event: evt}
		if p.resp.Success() && isListStart(evt) {
			p.list = true
			c.mu.Unlock()
			return
		}
		delete(c.pending, id)
		c.mu.Unlock()
		close(p.done)
		return
	}

	if id != "" {
		c.mu.Lock()
		p := c.pending[id]
		if p != nil && p.list {
			if strings.EqualFold(evt.Get("EventList"), "Complete") {
				delete(c.pending, id)
				c.mu.Unlock()
				close(p.done)
				return
			}
			p.resp.Events = append(p.resp.Events, evt)
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
	}

	c.enqueue(evt)
}

func isListStart(evt Event) bool {
	if strings.EqualFold(evt.Get("EventList"), "start") {
		return true
	}
	return strings.Contains(strings.ToLower(evt.Get("Message")), "will follow")
}

func (c *Client) enqueue(evt Event) {
	c.qmu.Lock()
	c.queue = append(c.queue, evt)
	c.qmu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Client) dequeue() (Event, bool) {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	if len(c.queue) == 0 {
		return Event{}, false
	}
	evt := c.queue[0]
	c.queue[0] = Event{}
	c.queue = c.queue[1:]
	return evt, true
}

// pump decouples the reader from event consumers so that a handler which
// issues actions can never stall response routing.
func (c *Client) pump() {
	defer close(c.events)
	finished := false
	for {
		evt, ok := c.dequeue()
		if !ok {
			if finished {
				return
			}
			select {
			case <-c.notify:
			case <-c.done:
				finished = true
			case <-c.stop:
				return
			}
			continue
		}
		select {
		case c.events <- evt:
		case <-c.stop:
			return
		}
	}
}
