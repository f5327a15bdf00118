package broker

import (
	"fmt"

	"github.com/adred-codev/foxbridge/pkg/wire"
)

// handleTextMessage dispatches one inbound control message. Failures are
// reported to the client as a status error; the connection stays open.
func (s *Server) handleTextMessage(sess *session, data []byte) {
	defer s.recoverToStatus(sess)

	msg, err := wire.DecodeClientText(data)
	if err != nil {
		sess.log.Debug().Err(err).Msg("Rejected client text message")
		sess.sendStatus(wire.StatusError, err.Error())
		return
	}

	switch m := msg.(type) {
	case wire.Subscribe:
		s.handleSubscribe(sess, m)
	case wire.Unsubscribe:
		s.handleUnsubscribe(sess, m)
	case wire.ClientAdvertise:
		s.handleClientAdvertise(sess, m)
	case wire.ClientUnadvertise:
		s.handleClientUnadvertise(sess, m)
	case wire.GetParameters:
		s.handleGetParameters(sess, m)
	case wire.SetParameters:
		s.handleSetParameters(sess, m)
	case wire.SubscribeParameterUpdates:
		s.handleSubscribeParameterUpdates(sess, m)
	case wire.UnsubscribeParameterUpdates:
		s.handleUnsubscribeParameterUpdates(sess, m)
	}
}

// handleBinaryMessage dispatches one inbound binary frame.
func (s *Server) handleBinaryMessage(sess *session, data []byte) {
	defer s.recoverToStatus(sess)

	msg, err := wire.DecodeClientBinary(data)
	if err != nil {
		sess.log.Debug().Err(err).Msg("Rejected client binary message")
		sess.sendStatus(wire.StatusError, err.Error())
		return
	}

	switch m := msg.(type) {
	case wire.ClientMessageData:
		s.handleClientMessageData(sess, m)
	case wire.ServiceCallRequest:
		s.handleServiceCallRequest(sess, m)
	}
}

// recoverToStatus converts a panicking handler into a status error, keeping
// the connection open; one bad message must not take the session down.
func (s *Server) recoverToStatus(sess *session) {
	if r := recover(); r != nil {
		sess.log.Warn().Interface("panic_value", r).Msg("Panic while handling client message")
		sess.sendStatus(wire.StatusError, fmt.Sprintf("%v", r))
	}
}

func (s *Server) handleSubscribe(sess *session, msg wire.Subscribe) {
	for _, sub := range msg.Subscriptions {
		if sess.hasSubscriptionID(sub.ID) {
			sess.sendStatus(wire.StatusError,
				fmt.Sprintf("Client subscription id %d was already used; ignoring subscription", sub.ID))
			continue
		}

		s.mu.Lock()
		if _, ok := s.channels[sub.ChannelID]; !ok {
			s.mu.Unlock()
			sess.sendStatus(wire.StatusWarning,
				fmt.Sprintf("Channel %d is not available; ignoring subscription", sub.ChannelID))
			continue
		}
		wasAny := s.subCount[sub.ChannelID] > 0
		if !sess.addSubscription(sub.ID, sub.ChannelID) {
			s.mu.Unlock()
			sess.sendStatus(wire.StatusWarning,
				fmt.Sprintf("Client is already subscribed to channel %d; ignoring subscription", sub.ChannelID))
			continue
		}
		s.subCount[sub.ChannelID]++
		s.mu.Unlock()

		sess.log.Debug().Uint32("channel_id", uint32(sub.ChannelID)).Uint32("subscription_id", uint32(sub.ID)).
			Msg("Client subscribed")

		if !wasAny {
			s.notifySubscribe(sess, sub.ChannelID)
		}
	}
}

func (s *Server) handleUnsubscribe(sess *session, msg wire.Unsubscribe) {
	for _, subID := range msg.SubscriptionIDs {
		ch, ok := sess.removeSubscription(subID)
		if !ok {
			sess.sendStatus(wire.StatusWarning,
				fmt.Sprintf("Client subscription id %d did not exist; ignoring unsubscription", subID))
			continue
		}

		s.mu.Lock()
		last := false
		// The channel may have been removed concurrently, in which case its
		// count is already gone and removal owns the edge.
		if _, exists := s.channels[ch]; exists {
			last = s.decSubCountLocked(ch)
		}
		s.mu.Unlock()

		sess.log.Debug().Uint32("channel_id", uint32(ch)).Uint32("subscription_id", uint32(subID)).
			Msg("Client unsubscribed")

		if last {
			s.notifyUnsubscribe(sess, ch)
		}
	}
}

func (s *Server) handleClientAdvertise(sess *session, msg wire.ClientAdvertise) {
	for _, ch := range msg.Channels {
		if !sess.addClientChannel(ch) {
			sess.sendStatus(wire.StatusWarning,
				fmt.Sprintf("Failed to add client channel %d", ch.ID))
			continue
		}
		sess.log.Debug().Uint32("client_channel_id", uint32(ch.ID)).Str("topic", ch.Topic).
			Msg("Client advertised channel")
		if s.listener != nil {
			if err := s.listener.OnClientAdvertise(s.ctx, ch); err != nil {
				sess.sendStatus(wire.StatusError, err.Error())
			}
		}
	}
}

func (s *Server) handleClientUnadvertise(sess *session, msg wire.ClientUnadvertise) {
	for _, chID := range msg.ChannelIDs {
		if !sess.removeClientChannel(chID) {
			sess.sendStatus(wire.StatusWarning,
				fmt.Sprintf("Failed to remove client channel %d", chID))
			continue
		}
		sess.log.Debug().Uint32("client_channel_id", uint32(chID)).Msg("Client unadvertised channel")
		if s.listener != nil {
			if err := s.listener.OnClientUnadvertise(s.ctx, chID); err != nil {
				sess.sendStatus(wire.StatusError, err.Error())
			}
		}
	}
}

func (s *Server) handleGetParameters(sess *session, msg wire.GetParameters) {
	if s.listener == nil {
		return
	}
	params, err := s.listener.OnGetParameters(s.ctx, msg.ParameterNames, msg.ID)
	if err != nil {
		sess.sendStatus(wire.StatusError, err.Error())
		return
	}
	if frame, err := (wire.ParameterValues{Parameters: params, ID: msg.ID}).Encode(); err == nil {
		sess.sendText(frame)
	}
}

func (s *Server) handleSetParameters(sess *session, msg wire.SetParameters) {
	if s.listener == nil {
		return
	}
	updated, err := s.listener.OnSetParameters(s.ctx, msg.Parameters, msg.ID)
	if err != nil {
		sess.sendStatus(wire.StatusError, err.Error())
		return
	}
	if msg.ID != nil {
		if frame, err := (wire.ParameterValues{Parameters: updated, ID: msg.ID}).Encode(); err == nil {
			sess.sendText(frame)
		}
	}
	s.UpdateParameters(updated)
}

func (s *Server) handleSubscribeParameterUpdates(sess *session, msg wire.SubscribeParameterUpdates) {
	s.mu.Lock()
	var newNames []string
	for _, name := range msg.ParameterNames {
		if !sess.addParamSub(name) {
			continue
		}
		if s.paramSubCount[name] == 0 {
			newNames = append(newNames, name)
		}
		s.paramSubCount[name]++
	}
	s.mu.Unlock()

	if len(newNames) > 0 && s.listener != nil {
		if err := s.listener.OnParametersSubscribe(s.ctx, newNames, true); err != nil {
			sess.sendStatus(wire.StatusError, err.Error())
		}
	}
}

func (s *Server) handleUnsubscribeParameterUpdates(sess *session, msg wire.UnsubscribeParameterUpdates) {
	s.mu.Lock()
	var removed []string
	for _, name := range msg.ParameterNames {
		if !sess.removeParamSub(name) {
			continue
		}
		if s.decParamSubCountLocked(name) {
			removed = append(removed, name)
		}
	}
	s.mu.Unlock()

	if len(removed) > 0 && s.listener != nil {
		if err := s.listener.OnParametersSubscribe(s.ctx, removed, false); err != nil {
			sess.sendStatus(wire.StatusError, err.Error())
		}
	}
}

func (s *Server) handleClientMessageData(sess *session, msg wire.ClientMessageData) {
	if !sess.hasClientChannel(msg.ChannelID) {
		sess.sendStatus(wire.StatusError,
			fmt.Sprintf("Channel %d not registered by client %s", msg.ChannelID, sess.remote))
		return
	}
	if s.listener != nil {
		if err := s.listener.OnClientMessage(s.ctx, msg.ChannelID, msg.Payload); err != nil {
			sess.sendStatus(wire.StatusError, err.Error())
		}
	}
}

func (s *Server) handleServiceCallRequest(sess *session, msg wire.ServiceCallRequest) {
	s.mu.Lock()
	_, ok := s.services[msg.ServiceID]
	s.mu.Unlock()
	if !ok {
		sess.sendStatus(wire.StatusError, fmt.Sprintf("Unknown service %d", msg.ServiceID))
		return
	}
	if s.listener == nil {
		return
	}

	response, err := s.listener.OnServiceRequest(s.ctx, msg.ServiceID, msg.CallID, msg.Encoding, msg.Payload)
	if err != nil {
		sess.sendStatus(wire.StatusError, err.Error())
		return
	}
	sess.sendBinary(wire.EncodeServiceCallResponse(msg.ServiceID, msg.CallID, msg.Encoding, response))
}
