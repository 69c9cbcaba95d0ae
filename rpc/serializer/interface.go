package serializer

import (
	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/cockroachdb/errors"
)

// ErrMalformedMessage marks every Deserialize failure. The server answers such requests
// with an IllegalArgument error, the payload never reaches a gateway.
var ErrMalformedMessage = errors.New("malformed message")

// IRPCSerializer is the interface for all Message Serializers
type IRPCSerializer interface {
	// Serialize serializes a Message into a byte array
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize decodes b into msg, resetting every field of msg first.
	// Errors are marked with ErrMalformedMessage.
	Deserialize(b []byte, msg *common.Message) error
}

// malformed wraps a decode failure of the named format
func malformed(err error, format string) error {
	return errors.Mark(errors.Wrapf(err, "decode %s message", format), ErrMalformedMessage)
}
