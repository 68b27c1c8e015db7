package mcpwire

import (
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// EncodeMessage serializes a JSON-RPC message to its wire format.
func EncodeMessage(msg jsonrpc.Message) ([]byte, error) {
	return jsonrpc.EncodeMessage(msg)
}

// DecodeMessage deserializes JSON-RPC wire format data into a jsonrpc.Message.
func DecodeMessage(data []byte) (jsonrpc.Message, error) {
	return jsonrpc.DecodeMessage(data)
}

// Wrap decodes raw JSON-RPC bytes and wraps them in a Message with the given
// direction and current timestamp. On decode failure it still returns a
// Message carrying the raw bytes and a nil Decoded field, so passthrough
// remains possible for frames the wrapper cannot parse.
func Wrap(raw []byte, dir Direction) *Message {
	decoded, err := jsonrpc.DecodeMessage(raw)
	if err != nil {
		return &Message{Raw: raw, Direction: dir, Timestamp: time.Now()}
	}
	return &Message{
		Raw:       raw,
		Direction: dir,
		Decoded:   decoded,
		Timestamp: time.Now(),
	}
}
