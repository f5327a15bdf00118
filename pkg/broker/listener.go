package broker

import (
	"context"

	"github.com/adred-codev/foxbridge/pkg/wire"
)

// Listener receives protocol events from the broker. All methods are invoked
// synchronously on the goroutine of the session that triggered the event (or
// the disconnect cleanup path), so a slow handler delays only that one
// client. Returned errors are reported to the triggering client as a status
// error; they never close the connection.
//
// Embed NopListener to implement a subset of the methods.
type Listener interface {
	// OnSubscribe is called when the first client subscribes to a channel.
	OnSubscribe(ctx context.Context, channelID wire.ChannelID) error

	// OnUnsubscribe is called when the last subscribed client unsubscribes
	// from a channel, including by disconnecting.
	OnUnsubscribe(ctx context.Context, channelID wire.ChannelID) error

	// OnClientAdvertise is called when a client advertises a channel.
	OnClientAdvertise(ctx context.Context, channel wire.ClientChannel) error

	// OnClientUnadvertise is called when a client channel is unadvertised.
	OnClientUnadvertise(ctx context.Context, channelID wire.ClientChannelID) error

	// OnClientMessage is called for each inbound message on a channel the
	// client currently advertises.
	OnClientMessage(ctx context.Context, channelID wire.ClientChannelID, payload []byte) error

	// OnServiceRequest handles a service call; the returned bytes are framed
	// into the response sent back on the requesting connection.
	OnServiceRequest(ctx context.Context, serviceID wire.ServiceID, callID uint32, encoding string, payload []byte) ([]byte, error)

	// OnGetParameters returns the requested parameters; an empty name list
	// means all parameters.
	OnGetParameters(ctx context.Context, names []string, requestID *string) ([]wire.Parameter, error)

	// OnSetParameters applies updates and returns the resulting values. The
	// result is echoed to the requester when a request id is present and
	// broadcast to parameter subscribers regardless.
	OnSetParameters(ctx context.Context, params []wire.Parameter, requestID *string) ([]wire.Parameter, error)

	// OnParametersSubscribe is called with the parameter names whose
	// aggregate subscription state crossed the zero threshold.
	OnParametersSubscribe(ctx context.Context, names []string, subscribe bool) error
}

// NopListener implements Listener with no-ops.
type NopListener struct{}

func (NopListener) OnSubscribe(context.Context, wire.ChannelID) error   { return nil }
func (NopListener) OnUnsubscribe(context.Context, wire.ChannelID) error { return nil }
func (NopListener) OnClientAdvertise(context.Context, wire.ClientChannel) error {
	return nil
}
func (NopListener) OnClientUnadvertise(context.Context, wire.ClientChannelID) error {
	return nil
}
func (NopListener) OnClientMessage(context.Context, wire.ClientChannelID, []byte) error {
	return nil
}
func (NopListener) OnServiceRequest(context.Context, wire.ServiceID, uint32, string, []byte) ([]byte, error) {
	return nil, nil
}
func (NopListener) OnGetParameters(context.Context, []string, *string) ([]wire.Parameter, error) {
	return nil, nil
}
func (NopListener) OnSetParameters(_ context.Context, params []wire.Parameter, _ *string) ([]wire.Parameter, error) {
	return params, nil
}
func (NopListener) OnParametersSubscribe(context.Context, []string, bool) error { return nil }

var _ Listener = NopListener{}
