package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 50 * time.Second

	// Maximum message size allowed from peer. Content messages carry markup.
	maxMessageSize = 64 << 10
)

func (s *PreviewServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.checkOrigin(r) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	query := r.URL.Query()
	name := query.Get("component")
	attrs := make(map[string]string)
	if raw := query.Get("attrs"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
			http.Error(w, "invalid attrs: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	if name != "" {
		if _, err := s.registry.Lookup(name); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns(),
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "websocket upgrade failed")
		return
	}

	client := newClient(r.Context(), s, conn, name, attrs, query.Get("content"))
	select {
	case s.register <- client:
	case <-s.hubDone:
		client.close()
		return
	case <-r.Context().Done():
		client.close()
		return
	}

	go client.writePump()
	go client.run()
	client.readPump()

	select {
	case s.unregister <- client:
	case <-s.hubDone:
		client.close()
	}
}

// checkOrigin accepts same-host origins, the configured allowed origins and
// the loopback aliases of the configured port.
func (s *PreviewServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return false
	}

	if originURL.Host == r.Host || s.isAllowedOrigin(origin) {
		return true
	}
	for _, alias := range s.loopbackHosts() {
		if originURL.Host == alias {
			return true
		}
	}
	return false
}

func (s *PreviewServer) loopbackHosts() []string {
	return []string{
		fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		fmt.Sprintf("localhost:%d", s.config.Server.Port),
		fmt.Sprintf("127.0.0.1:%d", s.config.Server.Port),
	}
}

// originPatterns lists the hosts the websocket handshake accepts besides the
// request host.
func (s *PreviewServer) originPatterns() []string {
	patterns := s.loopbackHosts()
	for _, allowed := range s.config.Server.AllowedOrigins {
		if allowed == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(allowed); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
		}
	}
	return patterns
}

func (s *PreviewServer) runWebSocketHub(ctx context.Context) {
	defer close(s.hubDone)

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-s.register:
			s.clientsMutex.Lock()
			s.clients[client] = struct{}{}
			count := len(s.clients)
			s.clientsMutex.Unlock()
			s.logger.Debug(ctx, "client connected", "component", client.name, "clients", count)

		case client := <-s.unregister:
			s.clientsMutex.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				client.close()
			}
			count := len(s.clients)
			s.clientsMutex.Unlock()
			s.logger.Debug(ctx, "client disconnected", "component", client.name, "clients", count)

		case msg := <-s.broadcast:
			s.clientsMutex.RLock()
			var failed []*Client
			for client := range s.clients {
				if !client.deliver(msg) {
					failed = append(failed, client)
				}
			}
			s.clientsMutex.RUnlock()

			if len(failed) > 0 {
				s.clientsMutex.Lock()
				for _, client := range failed {
					if _, ok := s.clients[client]; ok {
						delete(s.clients, client)
						client.close()
					}
				}
				s.clientsMutex.Unlock()
			}
		}
	}
}

// readPump decodes client messages into the session inbox until the
// connection closes.
func (c *Client) readPump() {
	defer c.cancel()
	c.conn.SetReadLimit(maxMessageSize)

	for {
		var msg ClientMessage
		if err := wsjson.Read(c.ctx, c.conn, &msg); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && c.ctx.Err() == nil {
				c.server.logger.Debug(c.ctx, "websocket read ended", "component", c.name, "error", err.Error())
			}
			return
		}
		if !c.limit.Allow() {
			c.server.logger.Debug(c.ctx, "client message dropped by rate limit", "component", c.name, "type", msg.Type)
			continue
		}
		select {
		case c.inbox <- msg:
		case <-c.ctx.Done():
			return
		}
	}
}

// writePump writes queued messages and pings the peer.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case <-c.ctx.Done():
			return

		case msg := <-c.send:
			writeCtx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := wsjson.Write(writeCtx, c.conn, msg)
			cancel()
			if err != nil {
				c.server.logger.Debug(c.ctx, "websocket write failed", "component", c.name, "error", err.Error())
				c.cancel()
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				c.cancel()
				return
			}
		}
	}
}
