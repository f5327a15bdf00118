package wire

import (
	"encoding/binary"
	"fmt"
)

// Binary frame opcodes. Server→client and client→server opcode spaces
// overlap; direction disambiguates.
const (
	BinaryMessageData         byte = 0x01
	BinaryTime                byte = 0x02
	BinaryServiceCallResponse byte = 0x03

	ClientBinaryMessageData        byte = 0x01
	ClientBinaryServiceCallRequest byte = 0x02
)

// Fixed header sizes, opcode byte included.
const (
	messageDataHeaderSize   = 1 + 4 + 8
	timeHeaderSize          = 1 + 8
	serviceCallHeaderSize   = 1 + 4 + 4 + 4
	clientMessageHeaderSize = 1 + 4
)

// EncodeMessageData frames a channel message for one subscription. Integers
// are little-endian per the protocol.
func EncodeMessageData(sub SubscriptionID, timestamp uint64, payload []byte) []byte {
	buf := make([]byte, messageDataHeaderSize+len(payload))
	buf[0] = BinaryMessageData
	binary.LittleEndian.PutUint32(buf[1:], uint32(sub))
	binary.LittleEndian.PutUint64(buf[5:], timestamp)
	copy(buf[messageDataHeaderSize:], payload)
	return buf
}

// EncodeTime frames a server timestamp broadcast.
func EncodeTime(timestamp uint64) []byte {
	buf := make([]byte, timeHeaderSize)
	buf[0] = BinaryTime
	binary.LittleEndian.PutUint64(buf[1:], timestamp)
	return buf
}

// EncodeServiceCallResponse frames a service response, echoing the request's
// service id, call id and encoding.
func EncodeServiceCallResponse(svc ServiceID, callID uint32, encoding string, payload []byte) []byte {
	buf := make([]byte, serviceCallHeaderSize+len(encoding)+len(payload))
	buf[0] = BinaryServiceCallResponse
	binary.LittleEndian.PutUint32(buf[1:], uint32(svc))
	binary.LittleEndian.PutUint32(buf[5:], callID)
	binary.LittleEndian.PutUint32(buf[9:], uint32(len(encoding)))
	copy(buf[serviceCallHeaderSize:], encoding)
	copy(buf[serviceCallHeaderSize+len(encoding):], payload)
	return buf
}

// ClientBinaryMessage is one decoded client→server binary frame: either a
// ClientMessageData or a ServiceCallRequest.
type ClientBinaryMessage interface {
	clientBinaryMessage()
}

// ClientMessageData is an inbound publish on a client-advertised channel.
type ClientMessageData struct {
	ChannelID ClientChannelID
	Payload   []byte
}

// ServiceCallRequest is an inbound service invocation.
type ServiceCallRequest struct {
	ServiceID ServiceID
	CallID    uint32
	Encoding  string
	Payload   []byte
}

func (ClientMessageData) clientBinaryMessage()  {}
func (ServiceCallRequest) clientBinaryMessage() {}

// DecodeClientBinary parses a binary frame from a client. Undersized frames
// and unknown opcodes are protocol errors; the caller reports them as a
// status and keeps the connection open. Payload slices alias the input.
func DecodeClientBinary(data []byte) (ClientBinaryMessage, error) {
	if len(data) < clientMessageHeaderSize {
		return nil, fmt.Errorf("received invalid binary message of size %d", len(data))
	}

	switch data[0] {
	case ClientBinaryMessageData:
		return ClientMessageData{
			ChannelID: ClientChannelID(binary.LittleEndian.Uint32(data[1:])),
			Payload:   data[clientMessageHeaderSize:],
		}, nil

	case ClientBinaryServiceCallRequest:
		if len(data) < serviceCallHeaderSize {
			return nil, fmt.Errorf("received invalid service call request of size %d", len(data))
		}
		encodingLen := int(binary.LittleEndian.Uint32(data[9:]))
		if serviceCallHeaderSize+encodingLen > len(data) {
			return nil, fmt.Errorf("service call request encoding length %d exceeds frame size %d", encodingLen, len(data))
		}
		return ServiceCallRequest{
			ServiceID: ServiceID(binary.LittleEndian.Uint32(data[1:])),
			CallID:    binary.LittleEndian.Uint32(data[5:]),
			Encoding:  string(data[serviceCallHeaderSize : serviceCallHeaderSize+encodingLen]),
			Payload:   data[serviceCallHeaderSize+encodingLen:],
		}, nil

	default:
		return nil, fmt.Errorf("received binary message with invalid operation %d", data[0])
	}
}
