package wire

import (
	"encoding/json"
	"fmt"
)

// Control message op discriminators.
const (
	opServerInfo          = "serverInfo"
	opStatus              = "status"
	opRemoveStatus        = "removeStatus"
	opAdvertise           = "advertise"
	opUnadvertise         = "unadvertise"
	opAdvertiseServices   = "advertiseServices"
	opUnadvertiseServices = "unadvertiseServices"
	opParameterValues     = "parameterValues"

	opSubscribe                   = "subscribe"
	opUnsubscribe                 = "unsubscribe"
	opGetParameters               = "getParameters"
	opSetParameters               = "setParameters"
	opSubscribeParameterUpdates   = "subscribeParameterUpdates"
	opUnsubscribeParameterUpdates = "unsubscribeParameterUpdates"
)

// ServerInfo is the first control message on every connection. Optional
// fields are emitted as null rather than omitted; clients key on presence of
// the object members, not their values.
type ServerInfo struct {
	Op                 string            `json:"op"`
	Name               string            `json:"name"`
	Capabilities       []string          `json:"capabilities"`
	SupportedEncodings []string          `json:"supportedEncodings"`
	Metadata           map[string]string `json:"metadata"`
	SessionID          *string           `json:"sessionId"`
}

func (m ServerInfo) Encode() ([]byte, error) {
	m.Op = opServerInfo
	if m.Capabilities == nil {
		m.Capabilities = []string{}
	}
	return json.Marshal(m)
}

// Status reports a server-side condition to one client or all clients.
type Status struct {
	Op      string      `json:"op"`
	Level   StatusLevel `json:"level"`
	Message string      `json:"message"`
	ID      *string     `json:"id"`
}

func (m Status) Encode() ([]byte, error) {
	m.Op = opStatus
	return json.Marshal(m)
}

// RemoveStatus retracts previously sent status messages by id.
type RemoveStatus struct {
	Op        string   `json:"op"`
	StatusIDs []string `json:"statusIds"`
}

func (m RemoveStatus) Encode() ([]byte, error) {
	m.Op = opRemoveStatus
	return json.Marshal(m)
}

// Advertise announces server channels: the full snapshot on connect, or a
// single new channel afterwards.
type Advertise struct {
	Op       string    `json:"op"`
	Channels []Channel `json:"channels"`
}

func (m Advertise) Encode() ([]byte, error) {
	m.Op = opAdvertise
	if m.Channels == nil {
		m.Channels = []Channel{}
	}
	return json.Marshal(m)
}

// Unadvertise retracts server channels.
type Unadvertise struct {
	Op         string      `json:"op"`
	ChannelIDs []ChannelID `json:"channelIds"`
}

func (m Unadvertise) Encode() ([]byte, error) {
	m.Op = opUnadvertise
	return json.Marshal(m)
}

// AdvertiseServices announces services, snapshot or incremental.
type AdvertiseServices struct {
	Op       string    `json:"op"`
	Services []Service `json:"services"`
}

func (m AdvertiseServices) Encode() ([]byte, error) {
	m.Op = opAdvertiseServices
	if m.Services == nil {
		m.Services = []Service{}
	}
	return json.Marshal(m)
}

// UnadvertiseServices retracts services.
type UnadvertiseServices struct {
	Op         string      `json:"op"`
	ServiceIDs []ServiceID `json:"serviceIds"`
}

func (m UnadvertiseServices) Encode() ([]byte, error) {
	m.Op = opUnadvertiseServices
	return json.Marshal(m)
}

// ParameterValues carries parameter state to a client; ID echoes the request
// id for getParameters/setParameters responses and is null for unsolicited
// updates.
type ParameterValues struct {
	Op         string      `json:"op"`
	Parameters []Parameter `json:"parameters"`
	ID         *string     `json:"id"`
}

func (m ParameterValues) Encode() ([]byte, error) {
	m.Op = opParameterValues
	if m.Parameters == nil {
		m.Parameters = []Parameter{}
	}
	return json.Marshal(m)
}

// ClientMessage is one decoded client→server control message. The concrete
// type is one of Subscribe, Unsubscribe, ClientAdvertise, ClientUnadvertise,
// GetParameters, SetParameters, SubscribeParameterUpdates or
// UnsubscribeParameterUpdates.
type ClientMessage interface {
	clientMessage()
}

// Subscription pairs a client-chosen subscription id with a server channel.
type Subscription struct {
	ID        SubscriptionID `json:"id"`
	ChannelID ChannelID      `json:"channelId"`
}

type Subscribe struct {
	Subscriptions []Subscription `json:"subscriptions"`
}

type Unsubscribe struct {
	SubscriptionIDs []SubscriptionID `json:"subscriptionIds"`
}

// ClientAdvertise announces client channels for reverse-direction publishing.
type ClientAdvertise struct {
	Channels []ClientChannel `json:"channels"`
}

type ClientUnadvertise struct {
	ChannelIDs []ClientChannelID `json:"channelIds"`
}

type GetParameters struct {
	ParameterNames []string `json:"parameterNames"`
	ID             *string  `json:"id"`
}

type SetParameters struct {
	Parameters []Parameter `json:"parameters"`
	ID         *string     `json:"id"`
}

type SubscribeParameterUpdates struct {
	ParameterNames []string `json:"parameterNames"`
}

type UnsubscribeParameterUpdates struct {
	ParameterNames []string `json:"parameterNames"`
}

func (Subscribe) clientMessage()                   {}
func (Unsubscribe) clientMessage()                 {}
func (ClientAdvertise) clientMessage()             {}
func (ClientUnadvertise) clientMessage()           {}
func (GetParameters) clientMessage()               {}
func (SetParameters) clientMessage()               {}
func (SubscribeParameterUpdates) clientMessage()   {}
func (UnsubscribeParameterUpdates) clientMessage() {}

// DecodeClientText parses a text frame into its tagged variant. Malformed
// JSON, a non-object top level, and unknown op values are all protocol
// errors; the caller reports them as a status and keeps the connection open.
func DecodeClientText(data []byte) (ClientMessage, error) {
	var probe struct {
		Op *string `json:"op"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("invalid JSON message: %w", err)
	}
	if probe.Op == nil {
		return nil, fmt.Errorf("expected JSON object with an 'op' field")
	}

	switch *probe.Op {
	case opSubscribe:
		return decodeAs[Subscribe](data, *probe.Op)
	case opUnsubscribe:
		return decodeAs[Unsubscribe](data, *probe.Op)
	case opAdvertise:
		return decodeAs[ClientAdvertise](data, *probe.Op)
	case opUnadvertise:
		return decodeAs[ClientUnadvertise](data, *probe.Op)
	case opGetParameters:
		return decodeAs[GetParameters](data, *probe.Op)
	case opSetParameters:
		return decodeAs[SetParameters](data, *probe.Op)
	case opSubscribeParameterUpdates:
		return decodeAs[SubscribeParameterUpdates](data, *probe.Op)
	case opUnsubscribeParameterUpdates:
		return decodeAs[UnsubscribeParameterUpdates](data, *probe.Op)
	default:
		return nil, fmt.Errorf("unrecognized client opcode %q", *probe.Op)
	}
}

func decodeAs[T ClientMessage](data []byte, op string) (ClientMessage, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid %q message: %w", op, err)
	}
	return m, nil
}
