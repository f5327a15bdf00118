package broker

import (
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/adred-codev/foxbridge/internal/metrics"
	"github.com/adred-codev/foxbridge/pkg/wire"
)

const (
	// Time allowed to write a frame to the peer before the session is
	// considered dead.
	writeWait = 10 * time.Second

	// Ping interval keeping idle connections alive through intermediaries.
	pingPeriod = 27 * time.Second
)

type outFrame struct {
	op   ws.OpCode
	data []byte
}

// session is one client connection. Inbound frames are processed in arrival
// order by readLoop; all outbound writes funnel through the buffered send
// queue drained by the single writeLoop goroutine, so at most one write is
// in flight per connection. The protocol maps are guarded by mu: the owning
// readLoop mutates them, and broker operations touch them from other
// goroutines (channel removal clears entries, fan-out lookups read them).
type session struct {
	id     uint64
	conn   net.Conn
	remote string
	srv    *Server
	log    zerolog.Logger

	send      chan outFrame
	done      chan struct{}
	closeOnce sync.Once
	limiter   *rate.Limiter // nil when inbound rate limiting is disabled

	mu               sync.Mutex
	subscriptions    map[wire.SubscriptionID]wire.ChannelID
	byChannel        map[wire.ChannelID]wire.SubscriptionID
	advertisements   map[wire.ClientChannelID]wire.ClientChannel
	subscribedParams map[string]struct{}
}

func newSession(srv *Server, conn net.Conn, id uint64) *session {
	remote := ""
	if conn != nil {
		if addr := conn.RemoteAddr(); addr != nil {
			remote = addr.String()
		}
	}

	var limiter *rate.Limiter
	if srv.opts.ClientMessageRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(srv.opts.ClientMessageRate), srv.opts.ClientMessageBurst)
	}

	return &session{
		id:               id,
		conn:             conn,
		remote:           remote,
		srv:              srv,
		log:              srv.log.With().Uint64("client_id", id).Str("remote", remote).Logger(),
		send:             make(chan outFrame, srv.opts.SendQueueSize),
		done:             make(chan struct{}),
		limiter:          limiter,
		subscriptions:    make(map[wire.SubscriptionID]wire.ChannelID),
		byChannel:        make(map[wire.ChannelID]wire.SubscriptionID),
		advertisements:   make(map[wire.ClientChannelID]wire.ClientChannel),
		subscribedParams: make(map[string]struct{}),
	}
}

// close shuts the session down exactly once; safe from any goroutine.
func (c *session) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// enqueue serializes an outbound frame onto this connection. It blocks when
// the queue is full (backpressure toward the producer) but never past the
// session's death, and it never fails: a write racing disconnection is
// swallowed, the peer is gone.
func (c *session) enqueue(f outFrame) {
	select {
	case c.send <- f:
	case <-c.done:
	}
}

func (c *session) sendText(data []byte) {
	c.enqueue(outFrame{op: ws.OpText, data: data})
}

func (c *session) sendBinary(data []byte) {
	c.enqueue(outFrame{op: ws.OpBinary, data: data})
}

func (c *session) sendStatus(level wire.StatusLevel, message string) {
	data, err := wire.Status{Level: level, Message: message}.Encode()
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to encode status message")
		return
	}
	metrics.StatusesSent.WithLabelValues(statusLevelLabel(level)).Inc()
	c.sendText(data)
}

func statusLevelLabel(level wire.StatusLevel) string {
	switch level {
	case wire.StatusInfo:
		return "info"
	case wire.StatusWarning:
		return "warning"
	default:
		return "error"
	}
}

// writeLoop is the sole writer on the connection.
func (c *session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case f := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerMessage(c.conn, f.op, f.data); err != nil {
				// Peer is gone or stalled past the deadline; disconnects are
				// routine, not errors.
				c.log.Debug().Err(err).Msg("Write failed, closing session")
				return
			}
			metrics.MessagesSent.Inc()
			metrics.BytesSent.Add(float64(len(f.data)))
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerMessage(c.conn, ws.OpPing, nil); err != nil {
				c.log.Debug().Err(err).Msg("Ping failed, closing session")
				return
			}
		}
	}
}

// readLoop processes inbound frames strictly in arrival order. A handler
// error surfaces as a status message; only transport failures and panics end
// the session.
func (c *session) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic_value", r).Msg("Panic in session handler")
			body := ws.NewCloseFrameBody(ws.StatusInternalServerError, "internal error")
			ws.WriteFrame(c.conn, ws.NewCloseFrame(body))
		}
		c.close()
		c.srv.unregister(c)
	}()

	for {
		data, op, err := wsutil.ReadClientData(c.conn)
		if err != nil {
			c.log.Debug().Err(err).Msg("Client disconnected")
			return
		}

		metrics.MessagesReceived.Inc()
		metrics.BytesReceived.Add(float64(len(data)))

		if c.limiter != nil && !c.limiter.Allow() {
			metrics.RateLimitedMessages.Inc()
			c.sendStatus(wire.StatusWarning, "Message rate limit exceeded; dropping message")
			continue
		}

		switch op {
		case ws.OpText:
			c.srv.handleTextMessage(c, data)
		case ws.OpBinary:
			c.srv.handleBinaryMessage(c, data)
		case ws.OpClose:
			return
		}
	}
}

// addSubscription links a client-chosen subscription id to a channel,
// rejecting a second subscription to the same channel.
func (c *session) addSubscription(sub wire.SubscriptionID, ch wire.ChannelID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.byChannel[ch]; exists {
		return false
	}
	c.subscriptions[sub] = ch
	c.byChannel[ch] = sub
	return true
}

func (c *session) hasSubscriptionID(sub wire.SubscriptionID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, exists := c.subscriptions[sub]
	return exists
}

// removeSubscription drops a subscription by id, returning the channel it
// pointed at.
func (c *session) removeSubscription(sub wire.SubscriptionID) (wire.ChannelID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, exists := c.subscriptions[sub]
	if !exists {
		return 0, false
	}
	delete(c.subscriptions, sub)
	delete(c.byChannel, ch)
	return ch, true
}

// subscriptionForChannel resolves the at-most-one subscription on a channel.
func (c *session) subscriptionForChannel(ch wire.ChannelID) (wire.SubscriptionID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, exists := c.byChannel[ch]
	return sub, exists
}

// dropChannel silently clears any subscription on a removed channel.
func (c *session) dropChannel(ch wire.ChannelID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, exists := c.byChannel[ch]
	if !exists {
		return false
	}
	delete(c.byChannel, ch)
	delete(c.subscriptions, sub)
	return true
}

// subscribedChannels snapshots the channels this session subscribes to.
func (c *session) subscribedChannels() []wire.ChannelID {
	c.mu.Lock()
	defer c.mu.Unlock()
	channels := make([]wire.ChannelID, 0, len(c.byChannel))
	for ch := range c.byChannel {
		channels = append(channels, ch)
	}
	return channels
}

func (c *session) addClientChannel(ch wire.ClientChannel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.advertisements[ch.ID]; exists {
		return false
	}
	c.advertisements[ch.ID] = ch
	return true
}

func (c *session) removeClientChannel(id wire.ClientChannelID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.advertisements[id]; !exists {
		return false
	}
	delete(c.advertisements, id)
	return true
}

func (c *session) hasClientChannel(id wire.ClientChannelID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, exists := c.advertisements[id]
	return exists
}

// addParamSub returns true if the name was newly added for this session.
func (c *session) addParamSub(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.subscribedParams[name]; exists {
		return false
	}
	c.subscribedParams[name] = struct{}{}
	return true
}

// removeParamSub returns true if the name was present for this session.
func (c *session) removeParamSub(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.subscribedParams[name]; !exists {
		return false
	}
	delete(c.subscribedParams, name)
	return true
}

func (c *session) paramSubList() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.subscribedParams))
	for name := range c.subscribedParams {
		names = append(names, name)
	}
	return names
}

// filterParams keeps only the parameters this session subscribed to.
func (c *session) filterParams(params []wire.Parameter) []wire.Parameter {
	c.mu.Lock()
	defer c.mu.Unlock()
	var interested []wire.Parameter
	for _, p := range params {
		if _, ok := c.subscribedParams[p.Name]; ok {
			interested = append(interested, p)
		}
	}
	return interested
}
