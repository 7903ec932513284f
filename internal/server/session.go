package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/tessera/internal/component"
	"github.com/conneroisu/tessera/internal/dom"
	"github.com/conneroisu/tessera/internal/style"
)

// Client message types.
const (
	ClientEvent     = "event"
	ClientAttribute = "attribute"
	ClientContent   = "content"
	ClientCall      = "call"
)

// messagesPerSecond bounds the client messages a session handles.
const messagesPerSecond = 50

// liveStyle scopes the styles of live hosts, which have no shadow root.
var liveStyle = style.NewScoper(style.ModeScoped)

// ClientMessage is a message received from the browser.
type ClientMessage struct {
	Type    string  `json:"type"`
	Event   string  `json:"event,omitempty"`
	Path    []int   `json:"path,omitempty"`
	Value   *string `json:"value,omitempty"`
	Checked *bool   `json:"checked,omitempty"`
	Name    string  `json:"name,omitempty"`
	Remove  bool    `json:"remove,omitempty"`
	Content string  `json:"content,omitempty"`
	Args    []any   `json:"args,omitempty"`
}

// Client is one websocket connection. A client opened with a component name
// owns a live instance of it; every access to the instance happens on the
// run goroutine.
type Client struct {
	conn   *websocket.Conn
	server *PreviewServer
	send   chan UpdateMessage
	inbox  chan ClientMessage
	ctx    context.Context
	cancel context.CancelFunc
	limit  *slidingWindow

	name    string
	attrs   map[string]string
	content string
	host    *component.HostElement
	inst    *component.Instance
}

func newClient(parent context.Context, s *PreviewServer, conn *websocket.Conn, name string, attrs map[string]string, content string) *Client {
	ctx, cancel := context.WithCancel(parent)
	return &Client{
		conn:    conn,
		server:  s,
		send:    make(chan UpdateMessage, 64),
		inbox:   make(chan ClientMessage, 16),
		ctx:     ctx,
		cancel:  cancel,
		limit:   newSlidingWindow(messagesPerSecond, time.Second),
		name:    name,
		attrs:   attrs,
		content: content,
	}
}

func (c *Client) close() {
	c.cancel()
	c.conn.Close(websocket.StatusGoingAway, "")
}

// deliver hands a broadcast to the client without blocking. Index clients
// get the message itself; live sessions reload when their component changes.
// It returns false when the client cannot keep up.
func (c *Client) deliver(msg UpdateMessage) bool {
	if c.name == "" {
		select {
		case c.send <- msg:
			return true
		default:
			return false
		}
	}
	if msg.Target != c.name || (msg.Type != MessageReload && msg.Type != MessageRemoved) {
		return true
	}
	select {
	case c.inbox <- ClientMessage{Type: msg.Type}:
		return true
	default:
		return false
	}
}

func (c *Client) sendMessage(msg UpdateMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.Target == "" {
		msg.Target = c.name
	}
	select {
	case c.send <- msg:
	case <-c.ctx.Done():
	}
}

// run owns the live instance until the connection ends.
func (c *Client) run() {
	defer c.destroy()
	if c.name != "" {
		c.mount()
	}
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-c.inbox:
			c.handle(msg)
		}
	}
}

// mount creates a fresh instance from the current definition. Attributes and
// content changed during the session carry over.
func (c *Client) mount() {
	if c.host != nil {
		c.attrs = c.host.Attributes()
		c.content = c.host.Content()
	}
	c.destroy()

	def, err := c.server.registry.Lookup(c.name)
	if err != nil {
		c.sendMessage(UpdateMessage{Type: MessageError, Content: err.Error()})
		return
	}

	c.host = component.NewHostElement(c.name, c.attrs, c.content)
	if err := c.host.Connect(); err != nil {
		c.server.failures.Handle(c.ctx, err, "live host connect failed", "component", c.name)
		c.sendMessage(UpdateMessage{Type: MessageError, Content: err.Error()})
		return
	}
	inst, err := component.Mount(def, c.host, c.server.componentOptions()...)
	if err != nil {
		c.server.failures.Handle(c.ctx, err, "live mount failed", "component", c.name)
	}
	if inst == nil {
		c.sendMessage(UpdateMessage{Type: MessageError, Content: err.Error()})
		return
	}
	c.inst = inst
	c.push()
}

func (c *Client) destroy() {
	if c.inst != nil {
		c.inst.Destroy()
		c.inst = nil
	}
}

func (c *Client) handle(msg ClientMessage) {
	switch msg.Type {
	case MessageReload:
		c.mount()
		return
	case MessageRemoved:
		c.destroy()
		c.sendMessage(UpdateMessage{Type: MessageRemoved})
		return
	}

	if c.inst == nil {
		c.sendMessage(UpdateMessage{Type: MessageError, Content: "no live instance"})
		return
	}

	var err error
	switch msg.Type {
	case ClientEvent:
		err = c.dispatch(msg)
	case ClientAttribute:
		if msg.Remove {
			err = c.host.RemoveAttribute(msg.Name)
		} else {
			value := ""
			if msg.Value != nil {
				value = *msg.Value
			}
			err = c.host.SetAttribute(msg.Name, value)
		}
	case ClientContent:
		err = c.host.SetContent(msg.Content)
	case ClientCall:
		if _, err = c.inst.Call(msg.Name, msg.Args...); err == nil {
			err = c.inst.Render()
		}
	default:
		err = fmt.Errorf("unknown message type %q", msg.Type)
		c.sendMessage(UpdateMessage{Type: MessageError, Content: err.Error()})
		return
	}

	if stderrors.Is(err, dom.ErrNoTarget) {
		c.server.logger.Debug(c.ctx, "event without target", "component", c.name, "path", fmt.Sprint(msg.Path))
		return
	}
	if err != nil {
		c.server.failures.Handle(c.ctx, err, "live session message failed", "component", c.name, "type", msg.Type)
	}
	c.push()
}

// dispatch mirrors the browser's form state onto the target, then delivers
// the event.
func (c *Client) dispatch(msg ClientMessage) error {
	if msg.Event == "" {
		return fmt.Errorf("event message without event type")
	}
	el := c.inst.Root().ElementAt(msg.Path)
	if el == nil {
		return dom.ErrNoTarget
	}
	if msg.Value != nil && el.IsFormControl() {
		el.SetValue(*msg.Value)
	}
	if msg.Checked != nil {
		el.SetChecked(*msg.Checked)
	}
	return c.inst.Dispatch(msg.Path, dom.NewEvent(msg.Event))
}

// push sends the current markup followed by the collected errors, which
// clears the overlay when there are none.
func (c *Client) push() {
	if c.inst == nil {
		return
	}
	c.sendMessage(UpdateMessage{Type: MessageRender, Content: c.inst.HTML()})
	errs := c.inst.Errors()
	c.sendMessage(UpdateMessage{Type: MessageErrors, Content: errs.ErrorOverlay()})
	errs.Clear()
}
