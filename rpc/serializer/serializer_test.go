package serializer

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/cockroachdb/errors"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Put request
		{
			MsgType: common.MsgTPut,
			Table:   []byte("users"),
			Row:     []byte("row-1"),
			Column:  []byte("info:name"),
			Value:   []byte("alice"),
		},

		// GetVerTs request
		{
			MsgType:     common.MsgTGetVerTs,
			Table:       []byte("users"),
			Row:         []byte("row-1"),
			Column:      []byte("info:name"),
			Timestamp:   1700000000000,
			NumVersions: 3,
		},

		// Scanner open request
		{
			MsgType:   common.MsgTScannerOpenWithStopTs,
			Table:     []byte("users"),
			Row:       []byte("a"),
			StopRow:   []byte("m"),
			Columns:   [][]byte{[]byte("info:"), []byte("meta:created")},
			Timestamp: 42,
		},

		// Scanner get response
		{
			MsgType:   common.MsgTScannerGet,
			ScannerID: 7,
			Row:       []byte("row-1"),
			Cells: []store.Cell{
				{Column: []byte("info:name"), Value: []byte("alice"), Timestamp: 10},
				{Column: []byte("info:age"), Value: []byte("31"), Timestamp: 9},
			},
			Ok: true,
		},

		// MutateRow request
		{
			MsgType: common.MsgTMutateRow,
			Table:   []byte("users"),
			Row:     []byte("row-1"),
			Mutations: []store.Mutation{
				{Column: []byte("info:name"), Value: []byte("bob")},
				{IsDelete: true, Column: []byte("info:age")},
			},
		},

		// CreateTable request
		{
			MsgType: common.MsgTCreateTable,
			Table:   []byte("users"),
			Families: []store.ColumnDescriptor{
				{Name: []byte("info"), MaxVersions: 3, Compression: "NONE", BloomFilterType: "ROW", BlockCacheEnabled: true},
				{Name: []byte("meta"), MaxVersions: 1, InMemory: true, TimeToLive: 3600},
			},
		},

		// Region and name listings
		{
			MsgType: common.MsgTGetTableRegions,
			Regions: []store.RegionInfo{{ID: 99, Name: []byte("users,,99")}},
			Values:  [][]byte{[]byte("users"), []byte("orders")},
			Ok:      true,
		},

		// Error response
		{
			MsgType: common.MsgTError,
			ErrCode: common.ErrCNotFound,
			Err:     "end of scanner reached",
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				// Compare
				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestDeserializeIntoUsedMessage tests that no field of a previous message survives a decode
func TestDeserializeIntoUsedMessage(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			data, err := serializer.Serialize(common.Message{MsgType: common.MsgTSuccess, Ok: true})
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			result := testMessages()[4]
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}
			if result.Row != nil || result.Cells != nil || result.ScannerID != 0 {
				t.Errorf("Stale fields after decode: %+v", result)
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			// Test each message type (don't test for MsgTUnknown since this should raise an error)
			for msgType := common.MsgTSuccess; msgType <= common.MsgTScannerClose; msgType++ {
				msg := common.Message{MsgType: msgType}

				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Check type
				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestBinarySerializerSpecific tests specific edge cases for the binary serializer
func TestBinarySerializerSpecific(t *testing.T) {
	serializer := NewBinarySerializer()

	// Test cases for empty or zero values
	testCases := []struct {
		name string
		msg  common.Message
	}{
		{
			name: "Empty message",
			msg:  common.Message{},
		},
		{
			name: "Empty row and value but not nil",
			msg: common.Message{
				MsgType: common.MsgTPut,
				Table:   []byte("t"),
				Row:     []byte{},
				Column:  []byte("f:q"),
				Value:   []byte{},
			},
		},
		{
			name: "Scanner id zero",
			msg: common.Message{
				MsgType:   common.MsgTScannerGet,
				ScannerID: 0,
			},
		},
		{
			name: "Negative number of versions",
			msg: common.Message{
				MsgType:     common.MsgTGetVer,
				NumVersions: -1,
			},
		},
		{
			name: "Maximal scanner id and timestamp",
			msg: common.Message{
				MsgType:   common.MsgTScannerClose,
				ScannerID: ^uint32(0),
				Timestamp: ^uint64(0),
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Serialize
			data, err := serializer.Serialize(tc.msg)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			// Deserialize
			var result common.Message
			err = serializer.Deserialize(data, &result)
			if err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			if !reflect.DeepEqual(tc.msg, result) {
				t.Errorf("Message doesn't match after round trip:\nOriginal: %+v\nResult: %+v", tc.msg, result)
			}

			// Empty but present byte fields stay non-nil
			if (tc.msg.Value == nil) != (result.Value == nil) {
				t.Errorf("Value nil/non-nil mismatch: expected %v, got %v", tc.msg.Value, result.Value)
			}
			if (tc.msg.Row == nil) != (result.Row == nil) {
				t.Errorf("Row nil/non-nil mismatch: expected %v, got %v", tc.msg.Row, result.Row)
			}
		})
	}
}

// TestBinarySerializerSize tests that the computed size matches the written data
func TestBinarySerializerSize(t *testing.T) {
	b := binarySerializerImpl{}
	for i, msg := range testMessages() {
		data, err := b.Serialize(msg)
		if err != nil {
			t.Fatalf("Failed to serialize message %d: %v", i, err)
		}
		if len(data) != b.sizeBytes(msg) {
			t.Errorf("Message %d: expected %d bytes, got %d", i, b.sizeBytes(msg), len(data))
		}
	}

	// header only
	data, _ := b.Serialize(common.Message{MsgType: common.MsgTGetTableNames})
	if !bytes.Equal(data, []byte{byte(common.MsgTGetTableNames), 0, 0, 0, 0}) {
		t.Errorf("Unexpected encoding of empty message: %v", data)
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{1, 0, 0}, // Message type and part of the flags
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0, 0, 0, 0}, // Message type 1, no flags
			expectError: false,
		},
		{
			name:        "Invalid length for table",
			data:        []byte{1, 0, 0, 0, 1, 0, 0, 0, 5, 'a', 'b', 'c'}, // Claims table length 5 but only 3 bytes provided
			expectError: true,
		},
		{
			name:        "Missing timestamp",
			data:        []byte{1, 0, 0, 0, 0x40, 0, 0, 0, 1}, // Timestamp flag set but only 4 bytes provided
			expectError: true,
		},
		{
			name:        "Cell count exceeds data",
			data:        []byte{1, 0, 0, 0x20, 0, 0xff, 0xff, 0xff, 0xff}, // Claims 2^32-1 cells
			expectError: true,
		},
		{
			name:        "Truncated mutation",
			data:        []byte{1, 0, 0, 0x02, 0, 0, 0, 0, 1, 0, 0, 0, 0, 2, 'f'}, // One mutation, column cut off
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}

// TestMessageTypeJSON tests the string encoding of message types
func TestMessageTypeJSON(t *testing.T) {
	for msgType := common.MsgTUnknown; msgType <= common.MsgTScannerClose; msgType++ {
		data, err := msgType.MarshalJSON()
		if err != nil {
			t.Fatalf("Failed to marshal %s: %v", msgType, err)
		}
		var result common.MessageType
		if err := result.UnmarshalJSON(data); err != nil {
			t.Fatalf("Failed to unmarshal %s: %v", data, err)
		}
		if result != msgType {
			t.Errorf("Expected %s, got %s", msgType, result)
		}
	}

	var result common.MessageType
	if err := result.UnmarshalJSON([]byte(`"kvSet"`)); err == nil {
		t.Errorf("Expected an error for an unknown message type")
	}
}

// TestMalformedPayloads tests that every decode failure is marked as a malformed message
func TestMalformedPayloads(t *testing.T) {
	payloads := map[string][][]byte{
		"JSON":   {nil, []byte("   "), []byte("{"), []byte(`{"msg_type":"put","bogus":1}`), []byte(`{"msg_type":"put"}{}`), []byte(`{"msg_type":"kvSet"}`)},
		"GOB":    {nil, []byte{0xff, 0x01}, []byte("not a gob stream")},
		"Binary": {nil, []byte{1, 0}, []byte{1, 0, 0, 0, 1, 0, 0, 0, 5, 'a'}},
	}

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()
			for i, payload := range payloads[name] {
				var msg common.Message
				err := serializer.Deserialize(payload, &msg)
				if err == nil {
					t.Errorf("Payload %d: expected an error", i)
					continue
				}
				if !errors.Is(err, ErrMalformedMessage) {
					t.Errorf("Payload %d: error is not marked as malformed: %v", i, err)
				}
			}
		})
	}
}
