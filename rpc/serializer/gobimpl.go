package serializer

import (
	"bytes"
	"encoding/gob"
	"sync"

	"github.com/ValentinKolb/rKV/rpc/common"
)

// NewGOBSerializer creates a new serializer using Go's binary gob format.
// Every message is a self contained gob stream (type information included),
// so server and client do not share decoder state across requests.
func NewGOBSerializer() IRPCSerializer {
	return &gobSerializerImpl{
		buffers: sync.Pool{New: func() interface{} { return new(bytes.Buffer) }},
	}
}

type gobSerializerImpl struct {
	buffers sync.Pool
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (g *gobSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	buf := g.buffers.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		g.buffers.Put(buf)
	}()

	if err := gob.NewEncoder(buf).Encode(&msg); err != nil {
		return nil, err
	}

	// the pooled buffer is reused, the caller gets its own copy
	return bytes.Clone(buf.Bytes()), nil
}

func (g *gobSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	// gob skips zero fields, stale values of a reused message must not survive
	*msg = common.Message{}
	if len(b) == 0 {
		return malformed(errEmptyPayload, "gob")
	}
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(msg); err != nil {
		return malformed(err, "gob")
	}
	return nil
}
