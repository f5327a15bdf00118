// Package wire implements the Foxglove WebSocket v1 framing: the JSON control
// plane and the length-prefixed binary data frames. All functions are pure;
// connection state lives in the broker.
package wire

import "errors"

// Subprotocol is the WebSocket subprotocol token negotiated during upgrade.
const Subprotocol = "foxglove.websocket.v1"

// Entity identifiers. Server-owned ids are allocated monotonically and never
// reused within a process lifetime; client-owned ids are opaque 32-bit values
// scoped to the connection that chose them.
type (
	ChannelID       uint32
	SubscriptionID  uint32
	ServiceID       uint32
	ClientChannelID uint32
)

// StatusLevel is the severity carried by a status control message.
type StatusLevel uint8

const (
	StatusInfo    StatusLevel = 0
	StatusWarning StatusLevel = 1
	StatusError   StatusLevel = 2
)

// Capability strings advertised in serverInfo.
const (
	CapabilityClientPublish       = "clientPublish"
	CapabilityServices            = "services"
	CapabilityParameters          = "parameters"
	CapabilityParametersSubscribe = "parametersSubscribe"
	CapabilityTime                = "time"
)

// ChannelSpec describes a server channel before an id is assigned.
type ChannelSpec struct {
	Topic          string `json:"topic"`
	Encoding       string `json:"encoding"`
	SchemaName     string `json:"schemaName"`
	Schema         string `json:"schema"`
	SchemaEncoding string `json:"schemaEncoding,omitempty"`
}

// Channel is a ChannelSpec with its broker-assigned id.
type Channel struct {
	ID ChannelID `json:"id"`
	ChannelSpec
}

// ServiceMessageDefinition describes one side of a service exchange when the
// full form (encoding + schema) is used instead of a bare schema string.
type ServiceMessageDefinition struct {
	Encoding       string `json:"encoding"`
	SchemaName     string `json:"schemaName"`
	SchemaEncoding string `json:"schemaEncoding"`
	Schema         string `json:"schema"`
}

// ServiceSpec describes a service before an id is assigned. At least one of
// Request/RequestSchema and one of Response/ResponseSchema must be set.
type ServiceSpec struct {
	Name           string                    `json:"name"`
	Type           string                    `json:"type"`
	Request        *ServiceMessageDefinition `json:"request,omitempty"`
	RequestSchema  string                    `json:"requestSchema,omitempty"`
	Response       *ServiceMessageDefinition `json:"response,omitempty"`
	ResponseSchema string                    `json:"responseSchema,omitempty"`
}

var (
	ErrMissingRequestDefinition  = errors.New("either 'request' or 'requestSchema' must be defined")
	ErrMissingResponseDefinition = errors.New("either 'response' or 'responseSchema' must be defined")
)

// Validate checks that both sides of the exchange are defined.
func (s ServiceSpec) Validate() error {
	if s.Request == nil && s.RequestSchema == "" {
		return ErrMissingRequestDefinition
	}
	if s.Response == nil && s.ResponseSchema == "" {
		return ErrMissingResponseDefinition
	}
	return nil
}

// Service is a ServiceSpec with its broker-assigned id.
type Service struct {
	ID ServiceID `json:"id"`
	ServiceSpec
}

// Parameter is a named value in the embedder's parameter store. Value is a
// scalar or a homogeneous list of int/float/bool/string; the broker passes it
// through untouched. Type is emitted as null when unset, matching the
// protocol's fixed field set.
type Parameter struct {
	Name  string  `json:"name"`
	Value any     `json:"value"`
	Type  *string `json:"type"`
}

// ClientChannel is a reverse-direction channel advertised by a client. Schema
// fields are optional on the client side.
type ClientChannel struct {
	ID             ClientChannelID `json:"id"`
	Topic          string          `json:"topic"`
	Encoding       string          `json:"encoding"`
	SchemaName     string          `json:"schemaName"`
	Schema         string          `json:"schema,omitempty"`
	SchemaEncoding string          `json:"schemaEncoding,omitempty"`
}
