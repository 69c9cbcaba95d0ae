package client

import (
	"errors"
	"testing"

	"github.com/ValentinKolb/rKV/lib/gateway"
	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/serializer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport answers every request with resp (encoded) or fails with err
type fakeTransport struct {
	resp *common.Message
	err  error
	ser  serializer.IRPCSerializer
}

func (f *fakeTransport) Connect(common.ClientConfig) error { return nil }
func (f *fakeTransport) Close() error                      { return nil }

func (f *fakeTransport) Send(_ uint64, _ []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ser.Serialize(*f.resp)
}

func newFakeGateway(t *testing.T, resp *common.Message, err error) gateway.IGateway {
	ser := serializer.NewBinarySerializer()
	gw, connErr := NewRPCGateway(0, common.ClientConfig{}, &fakeTransport{resp: resp, err: err, ser: ser}, ser)
	require.NoError(t, connErr)
	return gw
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name     string
		resp     *common.Message
		err      error
		category gateway.Category
		message  string
	}{
		{"not_found", common.NewErrorResponse(common.ErrCNotFound, gateway.MsgEndOfScanner), nil, gateway.CategoryNotFound, gateway.MsgEndOfScanner},
		{"illegal_argument", common.NewErrorResponse(common.ErrCIllegalArgument, gateway.MsgInvalidScanner), nil, gateway.CategoryIllegalArgument, gateway.MsgInvalidScanner},
		{"already_exists", common.NewErrorResponse(common.ErrCAlreadyExists, gateway.MsgTableInUse), nil, gateway.CategoryAlreadyExists, gateway.MsgTableInUse},
		{"unknown_code", common.NewErrorResponse(common.ErrorCode(99), "boom"), nil, gateway.CategoryIOError, "boom"},
		{"transport_failure", nil, errors.New("connection refused"), gateway.CategoryIOError, "connection refused"},
		{"wrong_type", common.NewResponse(common.MsgTPut), nil, gateway.CategoryIOError, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gw := newFakeGateway(t, tc.resp, tc.err)
			_, err := gw.ScannerGet(1)

			var gwErr *gateway.Error
			require.ErrorAs(t, err, &gwErr)
			assert.Equal(t, tc.category, gwErr.Category)
			if tc.message != "" {
				assert.Equal(t, tc.message, gwErr.Message)
			}
		})
	}
}

func TestSuccessResponse(t *testing.T) {
	resp := common.NewResponse(common.MsgTScannerOpen)
	resp.ScannerID = 17
	gw := newFakeGateway(t, resp, nil)

	id, err := gw.ScannerOpen([]byte("t"), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, gateway.ScannerID(17), id)
}
