// Package broker implements the server side of the Foxglove WebSocket v1
// pub/sub protocol: channel advertisement and fan-out, client-published
// channels, request/response services, and parameter subscriptions, brokered
// across concurrent client connections.
package broker

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gobwas/ws"
	"github.com/rs/zerolog"

	"github.com/adred-codev/foxbridge/internal/metrics"
	"github.com/adred-codev/foxbridge/pkg/wire"
)

// Options configures a Server.
type Options struct {
	// Addr is the host:port the acceptor binds; defaults to ":8765".
	Addr string

	// Name is advertised in serverInfo.
	Name string

	// Capabilities advertised in serverInfo; see wire.Capability constants.
	Capabilities []string

	// SupportedEncodings advertised in serverInfo (may be nil).
	SupportedEncodings []string

	// Metadata advertised in serverInfo (may be nil).
	Metadata map[string]string

	// SessionID advertised in serverInfo; empty means none.
	SessionID string

	// Listener receives protocol events; may be nil.
	Listener Listener

	// Logger for broker events. Connection lifecycle logs at debug level.
	Logger zerolog.Logger

	// MaxConnections caps concurrent clients; 0 means 1024.
	MaxConnections int

	// SendQueueSize is the per-connection outbound queue depth; 0 means 256.
	SendQueueSize int

	// ClientMessageRate limits inbound messages per second per client;
	// 0 disables limiting. ClientMessageBurst is the bucket size.
	ClientMessageRate  float64
	ClientMessageBurst int

	// MetricsHandler, if set, is served at /metrics on the same listener.
	MetricsHandler http.Handler

	// HealthHandler, if set, is served at /healthz on the same listener.
	HealthHandler http.Handler
}

// Server is the broker core. Producer-facing methods are safe for concurrent
// use; they may block while a slow client's send queue drains, but never
// past that client's death.
type Server struct {
	opts     Options
	log      zerolog.Logger
	listener Listener

	ctx    context.Context
	cancel context.CancelFunc

	netListener net.Listener
	httpServer  *http.Server
	wg          sync.WaitGroup
	connSem     chan struct{}
	nextClient  uint64
	shutting    int32

	mu            sync.Mutex
	sessions      map[*session]struct{}
	channels      map[wire.ChannelID]wire.Channel
	nextChannelID wire.ChannelID
	services      map[wire.ServiceID]wire.Service
	nextServiceID wire.ServiceID
	subCount      map[wire.ChannelID]int
	paramSubCount map[string]int
	sessionID     *string
}

// New creates a broker server. Call Start to begin accepting connections.
func New(opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8765"
	}
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = 1024
	}
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = 256
	}
	if opts.ClientMessageRate > 0 && opts.ClientMessageBurst <= 0 {
		opts.ClientMessageBurst = 100
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		opts:          opts,
		log:           opts.Logger,
		listener:      opts.Listener,
		ctx:           ctx,
		cancel:        cancel,
		connSem:       make(chan struct{}, opts.MaxConnections),
		sessions:      make(map[*session]struct{}),
		channels:      make(map[wire.ChannelID]wire.Channel),
		services:      make(map[wire.ServiceID]wire.Service),
		subCount:      make(map[wire.ChannelID]int),
		paramSubCount: make(map[string]int),
	}
	if opts.SessionID != "" {
		id := opts.SessionID
		s.sessionID = &id
	}
	return s
}

// Start binds the listener and begins accepting connections. It returns once
// the listener is bound; the accept loop runs in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}
	s.netListener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebSocket)
	if s.opts.HealthHandler != nil {
		mux.Handle("/healthz", s.opts.HealthHandler)
	}
	if s.opts.MetricsHandler != nil {
		mux.Handle("/metrics", s.opts.MetricsHandler)
	}

	s.httpServer = &http.Server{Handler: mux}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Debug().Err(err).Msg("Accept loop terminated")
		}
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Str("name", s.opts.Name).Msg("Server listening")
	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.netListener == nil {
		return nil
	}
	return s.netListener.Addr()
}

// ConnectionCount returns the number of live client sessions.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown stops accepting connections, closes every live session, and waits
// for their goroutines to drain or the context to expire. Safe to call
// whether or not Start completed.
func (s *Server) Shutdown(ctx context.Context) error {
	atomic.StoreInt32(&s.shutting, 1)
	s.cancel()

	if s.netListener != nil {
		s.netListener.Close()
	}

	s.mu.Lock()
	sessions := s.sessionListLocked()
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info().Msg("Server shut down")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if atomic.LoadInt32(&s.shutting) == 1 {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	select {
	case s.connSem <- struct{}{}:
	default:
		metrics.ConnectionsFailed.Inc()
		s.log.Warn().Int("max_connections", s.opts.MaxConnections).Msg("Connection rejected, server at capacity")
		http.Error(w, "Server at capacity", http.StatusServiceUnavailable)
		return
	}

	upgrader := ws.HTTPUpgrader{
		Protocol: func(p string) bool { return p == wire.Subprotocol },
	}
	conn, _, _, err := upgrader.Upgrade(r, w)
	if err != nil {
		<-s.connSem
		metrics.ConnectionsFailed.Inc()
		s.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	sess := newSession(s, conn, atomic.AddUint64(&s.nextClient, 1))
	metrics.ConnectionsTotal.Inc()
	metrics.ConnectionsActive.Inc()
	sess.log.Debug().Msg("Connection opened")

	s.register(sess)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		sess.writeLoop()
	}()
	go func() {
		defer s.wg.Done()
		sess.readLoop()
	}()
}

// register adds the session and enqueues its state snapshot atomically with
// respect to broker mutations, so the snapshot plus subsequent incremental
// updates give the client a consistent view: an operation that captured the
// session list before this point excludes the session, and one that captures
// it afterwards cannot enqueue ahead of the snapshot frames.
func (s *Server) register(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess] = struct{}{}

	if frame, err := s.serverInfoLocked().Encode(); err == nil {
		sess.sendText(frame)
	}
	if frame, err := (wire.Advertise{Channels: s.channelListLocked()}).Encode(); err == nil {
		sess.sendText(frame)
	}
	if s.hasCapability(wire.CapabilityServices) {
		if frame, err := (wire.AdvertiseServices{Services: s.serviceListLocked()}).Encode(); err == nil {
			sess.sendText(frame)
		}
	}
}

// unregister reaps a disconnected session and fires the last-unsubscriber
// edges its departure caused.
func (s *Server) unregister(sess *session) {
	s.mu.Lock()
	if _, ok := s.sessions[sess]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.sessions, sess)

	var lastChannels []wire.ChannelID
	for _, ch := range sess.subscribedChannels() {
		if s.decSubCountLocked(ch) {
			lastChannels = append(lastChannels, ch)
		}
	}

	var lastParams []string
	for _, name := range sess.paramSubList() {
		if s.decParamSubCountLocked(name) {
			lastParams = append(lastParams, name)
		}
	}
	s.mu.Unlock()

	metrics.ConnectionsActive.Dec()
	<-s.connSem
	sess.log.Debug().Msg("Connection closed")

	for _, ch := range lastChannels {
		s.notifyUnsubscribe(sess, ch)
	}
	if len(lastParams) > 0 && s.listener != nil {
		if err := s.listener.OnParametersSubscribe(s.ctx, lastParams, false); err != nil {
			sess.log.Warn().Err(err).Msg("Parameter unsubscribe listener failed")
		}
	}
}

// decSubCountLocked decrements a channel's aggregate subscriber count and
// reports whether it hit zero.
func (s *Server) decSubCountLocked(ch wire.ChannelID) bool {
	if s.subCount[ch] <= 1 {
		delete(s.subCount, ch)
		return true
	}
	s.subCount[ch]--
	return false
}

// decParamSubCountLocked decrements a parameter's aggregate subscriber count
// and reports whether it hit zero.
func (s *Server) decParamSubCountLocked(name string) bool {
	if s.paramSubCount[name] <= 1 {
		delete(s.paramSubCount, name)
		return true
	}
	s.paramSubCount[name]--
	return false
}

func (s *Server) hasCapability(cap string) bool {
	for _, c := range s.opts.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

func (s *Server) serverInfoLocked() wire.ServerInfo {
	return wire.ServerInfo{
		Name:               s.opts.Name,
		Capabilities:       s.opts.Capabilities,
		SupportedEncodings: s.opts.SupportedEncodings,
		Metadata:           s.opts.Metadata,
		SessionID:          s.sessionID,
	}
}

func (s *Server) sessionListLocked() []*session {
	list := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		list = append(list, sess)
	}
	return list
}

func (s *Server) channelListLocked() []wire.Channel {
	list := make([]wire.Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		list = append(list, ch)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

func (s *Server) serviceListLocked() []wire.Service {
	list := make([]wire.Service, 0, len(s.services))
	for _, svc := range s.services {
		list = append(list, svc)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// broadcastText enqueues an encoded control frame on the given sessions.
func (s *Server) broadcastText(sessions []*session, frame []byte) {
	for _, sess := range sessions {
		sess.sendText(frame)
	}
}

// snapshotSessions copies the session list so fan-out iteration never holds
// the broker lock across a send.
func (s *Server) snapshotSessions() []*session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionListLocked()
}

// AddChannel registers a channel and advertises it to every connected
// client. Clients that connect mid-call receive it in their snapshot
// instead.
func (s *Server) AddChannel(spec wire.ChannelSpec) wire.ChannelID {
	s.mu.Lock()
	id := s.nextChannelID
	s.nextChannelID++
	ch := wire.Channel{ID: id, ChannelSpec: spec}
	s.channels[id] = ch
	sessions := s.sessionListLocked()
	s.mu.Unlock()

	metrics.ChannelsActive.Inc()
	s.log.Debug().Uint32("channel_id", uint32(id)).Str("topic", spec.Topic).Msg("Channel added")

	if frame, err := (wire.Advertise{Channels: []wire.Channel{ch}}).Encode(); err == nil {
		s.broadcastText(sessions, frame)
	}
	return id
}

// RemoveChannel drops a channel, silently clears every session's
// subscription on it (removal is server-driven, so no unsubscribe callbacks
// fire), and unadvertises it.
func (s *Server) RemoveChannel(id wire.ChannelID) error {
	s.mu.Lock()
	if _, ok := s.channels[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown channel %d", id)
	}
	delete(s.channels, id)
	delete(s.subCount, id)
	sessions := s.sessionListLocked()
	for _, sess := range sessions {
		sess.dropChannel(id)
	}
	s.mu.Unlock()

	metrics.ChannelsActive.Dec()
	s.log.Debug().Uint32("channel_id", uint32(id)).Msg("Channel removed")

	if frame, err := (wire.Unadvertise{ChannelIDs: []wire.ChannelID{id}}).Encode(); err == nil {
		s.broadcastText(sessions, frame)
	}
	return nil
}

// AddService registers a service. The advertisement is only sent when the
// services capability is enabled; the service is tracked regardless.
func (s *Server) AddService(spec wire.ServiceSpec) (wire.ServiceID, error) {
	if err := spec.Validate(); err != nil {
		return 0, fmt.Errorf("invalid service definition: %w", err)
	}

	s.mu.Lock()
	id := s.nextServiceID
	s.nextServiceID++
	svc := wire.Service{ID: id, ServiceSpec: spec}
	s.services[id] = svc
	sessions := s.sessionListLocked()
	s.mu.Unlock()

	s.log.Debug().Uint32("service_id", uint32(id)).Str("name", spec.Name).Msg("Service added")

	if s.hasCapability(wire.CapabilityServices) {
		if frame, err := (wire.AdvertiseServices{Services: []wire.Service{svc}}).Encode(); err == nil {
			s.broadcastText(sessions, frame)
		}
	}
	return id, nil
}

// RemoveService drops a service and unadvertises it when the services
// capability is enabled.
func (s *Server) RemoveService(id wire.ServiceID) error {
	s.mu.Lock()
	if _, ok := s.services[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown service %d", id)
	}
	delete(s.services, id)
	sessions := s.sessionListLocked()
	s.mu.Unlock()

	if s.hasCapability(wire.CapabilityServices) {
		if frame, err := (wire.UnadvertiseServices{ServiceIDs: []wire.ServiceID{id}}).Encode(); err == nil {
			s.broadcastText(sessions, frame)
		}
	}
	return nil
}

// SendMessage delivers a payload on a channel to every subscribed client.
// Sessions without a subscription are skipped; writes racing a disconnect
// are swallowed.
func (s *Server) SendMessage(ch wire.ChannelID, timestamp uint64, payload []byte) {
	for _, sess := range s.snapshotSessions() {
		if sub, ok := sess.subscriptionForChannel(ch); ok {
			sess.sendBinary(wire.EncodeMessageData(sub, timestamp, payload))
		}
	}
}

// BroadcastTime sends the TIME frame to every client.
func (s *Server) BroadcastTime(timestamp uint64) {
	frame := wire.EncodeTime(timestamp)
	for _, sess := range s.snapshotSessions() {
		sess.sendBinary(frame)
	}
}

// SendStatus broadcasts a status message; id may be empty.
func (s *Server) SendStatus(level wire.StatusLevel, message string, id string) {
	status := wire.Status{Level: level, Message: message}
	if id != "" {
		status.ID = &id
	}
	frame, err := status.Encode()
	if err != nil {
		return
	}
	metrics.StatusesSent.WithLabelValues(statusLevelLabel(level)).Inc()
	s.broadcastText(s.snapshotSessions(), frame)
}

// RemoveStatus retracts previously sent statuses on every client.
func (s *Server) RemoveStatus(statusIDs []string) {
	frame, err := (wire.RemoveStatus{StatusIDs: statusIDs}).Encode()
	if err != nil {
		return
	}
	s.broadcastText(s.snapshotSessions(), frame)
}

// UpdateParameters sends each connected client the subset of parameters it
// has subscribed to.
func (s *Server) UpdateParameters(params []wire.Parameter) {
	for _, sess := range s.snapshotSessions() {
		interested := sess.filterParams(params)
		if len(interested) == 0 {
			continue
		}
		if frame, err := (wire.ParameterValues{Parameters: interested}).Encode(); err == nil {
			sess.sendText(frame)
		}
	}
}

// ResetSessionID replaces the session id (empty clears it) and re-sends
// serverInfo to every client.
func (s *Server) ResetSessionID(sessionID string) {
	s.mu.Lock()
	if sessionID == "" {
		s.sessionID = nil
	} else {
		s.sessionID = &sessionID
	}
	info := s.serverInfoLocked()
	sessions := s.sessionListLocked()
	s.mu.Unlock()

	if frame, err := info.Encode(); err == nil {
		s.broadcastText(sessions, frame)
	}
}

// notifySubscribe invokes the first-subscriber callback.
func (s *Server) notifySubscribe(sess *session, ch wire.ChannelID) {
	if s.listener == nil {
		return
	}
	if err := s.listener.OnSubscribe(s.ctx, ch); err != nil {
		sess.log.Warn().Err(err).Uint32("channel_id", uint32(ch)).Msg("Subscribe listener failed")
		sess.sendStatus(wire.StatusError, err.Error())
	}
}

// notifyUnsubscribe invokes the last-unsubscriber callback.
func (s *Server) notifyUnsubscribe(sess *session, ch wire.ChannelID) {
	if s.listener == nil {
		return
	}
	if err := s.listener.OnUnsubscribe(s.ctx, ch); err != nil {
		sess.log.Warn().Err(err).Uint32("channel_id", uint32(ch)).Msg("Unsubscribe listener failed")
		sess.sendStatus(wire.StatusError, err.Error())
	}
}
