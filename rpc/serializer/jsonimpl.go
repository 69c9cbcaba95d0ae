package serializer

import (
	"bytes"
	"encoding/json"

	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/cockroachdb/errors"
)

var errEmptyPayload = errors.New("empty payload")

// NewJSONSerializer creates a new serializer using json encoding.
// Byte fields (table, row, column, value) are carried as base64 strings,
// message types by their operation name (e.g. "scannerOpen").
func NewJSONSerializer() IRPCSerializer {
	return jsonSerializerImpl{}
}

type jsonSerializerImpl struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (j jsonSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	*msg = common.Message{}
	if len(bytes.TrimSpace(b)) == 0 {
		return malformed(errEmptyPayload, "json")
	}

	// unknown fields usually mean a client speaking another protocol version
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(msg); err != nil {
		return malformed(err, "json")
	}
	if dec.More() {
		return malformed(errors.New("trailing data after message"), "json")
	}
	return nil
}
