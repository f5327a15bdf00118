package wire

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeMessageData(t *testing.T) {
	frame := EncodeMessageData(42, 0x0102030405060708, []byte("hello"))

	require.Len(t, frame, 13+5)
	assert.Equal(t, BinaryMessageData, frame[0])
	assert.Equal(t, uint32(42), binary.LittleEndian.Uint32(frame[1:]))
	assert.Equal(t, uint64(0x0102030405060708), binary.LittleEndian.Uint64(frame[5:]))
	assert.Equal(t, []byte("hello"), frame[13:])
}

func TestEncodeTime(t *testing.T) {
	frame := EncodeTime(1234)

	require.Len(t, frame, 9)
	assert.Equal(t, BinaryTime, frame[0])
	assert.Equal(t, uint64(1234), binary.LittleEndian.Uint64(frame[1:]))
}

func TestEncodeServiceCallResponse(t *testing.T) {
	frame := EncodeServiceCallResponse(2, 123, "json", []byte(`{"success":true}`))

	require.Len(t, frame, 13+4+16)
	assert.Equal(t, BinaryServiceCallResponse, frame[0])
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(frame[1:]))
	assert.Equal(t, uint32(123), binary.LittleEndian.Uint32(frame[5:]))
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(frame[9:]))
	assert.Equal(t, "json", string(frame[13:17]))
	assert.Equal(t, `{"success":true}`, string(frame[17:]))
}

func TestDecodeClientMessageData(t *testing.T) {
	frame := []byte{ClientBinaryMessageData, 5, 0, 0, 0, 'p', 'a', 'y'}

	msg, err := DecodeClientBinary(frame)
	require.NoError(t, err)

	data, ok := msg.(ClientMessageData)
	require.True(t, ok)
	assert.Equal(t, ClientChannelID(5), data.ChannelID)
	assert.Equal(t, []byte("pay"), data.Payload)
}

func TestDecodeClientMessageDataEmptyPayload(t *testing.T) {
	msg, err := DecodeClientBinary([]byte{ClientBinaryMessageData, 1, 0, 0, 0})
	require.NoError(t, err)

	data, ok := msg.(ClientMessageData)
	require.True(t, ok)
	assert.Empty(t, data.Payload)
}

func TestDecodeServiceCallRequest(t *testing.T) {
	frame := make([]byte, 0, 32)
	frame = append(frame, ClientBinaryServiceCallRequest)
	frame = binary.LittleEndian.AppendUint32(frame, 2)   // service id
	frame = binary.LittleEndian.AppendUint32(frame, 123) // call id
	frame = binary.LittleEndian.AppendUint32(frame, 4)   // encoding length
	frame = append(frame, "json"...)
	frame = append(frame, `{"data":true}`...)

	msg, err := DecodeClientBinary(frame)
	require.NoError(t, err)

	req, ok := msg.(ServiceCallRequest)
	require.True(t, ok)
	assert.Equal(t, ServiceID(2), req.ServiceID)
	assert.Equal(t, uint32(123), req.CallID)
	assert.Equal(t, "json", req.Encoding)
	assert.Equal(t, `{"data":true}`, string(req.Payload))
}

func TestDecodeUndersizedFrame(t *testing.T) {
	for _, frame := range [][]byte{{}, {0x01}, {0x01, 0, 0, 0}} {
		_, err := DecodeClientBinary(frame)
		require.Error(t, err, "frame %v", frame)
		assert.Contains(t, err.Error(), "invalid binary message")
	}
}

func TestDecodeUnknownOpcode(t *testing.T) {
	_, err := DecodeClientBinary([]byte{0x7f, 0, 0, 0, 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid operation 127")
}

func TestDecodeServiceCallRequestTruncated(t *testing.T) {
	// Header claims a longer encoding than the frame carries.
	frame := make([]byte, 0, 16)
	frame = append(frame, ClientBinaryServiceCallRequest)
	frame = binary.LittleEndian.AppendUint32(frame, 1)
	frame = binary.LittleEndian.AppendUint32(frame, 1)
	frame = binary.LittleEndian.AppendUint32(frame, 100)
	frame = append(frame, "json"...)

	_, err := DecodeClientBinary(frame)
	require.Error(t, err)
}
