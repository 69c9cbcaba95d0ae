package internal

import (
	"bytes"
	"encoding/binary"
	"reflect"
	"testing"

	"github.com/ValentinKolb/rKV/lib/store"
)

// TestSizeBytes tests the SizeBytes method
func TestSizeBytes(t *testing.T) {
	tests := []struct {
		name     string
		command  Command
		expected int
	}{
		{
			name: "Command with table, row and payload",
			command: Command{
				Type:      CommandTCommit,
				Timestamp: 100,
				Table:     []byte("table"),
				Row:       []byte("row"),
				Payload:   []byte("payload"),
			},
			expected: 1 + 8 + 4 + 5 + 4 + 3 + 7, // Type + Timestamp + TableLen + Table + RowLen + Row + Payload
		},
		{
			name: "Command with table only",
			command: Command{
				Type:  CommandTDeleteTable,
				Table: []byte("table"),
			},
			expected: 1 + 8 + 4 + 5 + 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size := tt.command.SizeBytes()
			if size != tt.expected {
				t.Errorf("SizeBytes() = %v, want %v", size, tt.expected)
			}
		})
	}
}

// TestSerializeDeserialize tests both Serialize and Deserialize methods
func TestSerializeDeserialize(t *testing.T) {
	tests := []struct {
		name    string
		command Command
	}{
		{
			name: "Commit command",
			command: Command{
				Type:      CommandTCommit,
				Timestamp: 1700000000000,
				Table:     []byte("users"),
				Row:       []byte("alice"),
				Payload:   EncodeMutations([]store.Mutation{{Column: []byte("info:mail"), Value: []byte("a@b")}}),
			},
		},
		{
			name: "Command without payload",
			command: Command{
				Type:      CommandTDeleteRow,
				Timestamp: 42,
				Table:     []byte("users"),
				Row:       []byte("alice"),
			},
		},
		{
			name: "Command with empty row",
			command: Command{
				Type:  CommandTDeleteTable,
				Table: []byte("users"),
			},
		},
		{
			name: "Command with max timestamp",
			command: Command{
				Type:      CommandTCommit,
				Timestamp: 18446744073709551615, // Max uint64
				Table:     []byte("t"),
				Row:       []byte("r"),
				Payload:   []byte{0},
			},
		},
		{
			name: "Command with binary fields",
			command: Command{
				Type:      CommandTCommit,
				Timestamp: 1,
				Table:     []byte{0, 1, 2},
				Row:       []byte{255, 0, 254},
				Payload:   []byte{0, 1, 2, 3, 254, 255},
			},
		},
		{
			name: "Command with Unicode table",
			command: Command{
				Type:  CommandTCreateTable,
				Table: []byte("你好世界"), // Hello World in Chinese
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.command.Serialize()

			var newCommand Command
			if err := newCommand.Deserialize(data); err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}

			if newCommand.Type != tt.command.Type {
				t.Errorf("Type mismatch: got %v, want %v", newCommand.Type, tt.command.Type)
			}
			if newCommand.Timestamp != tt.command.Timestamp {
				t.Errorf("Timestamp mismatch: got %v, want %v", newCommand.Timestamp, tt.command.Timestamp)
			}
			if !bytes.Equal(newCommand.Table, tt.command.Table) {
				t.Errorf("Table mismatch: got %q, want %q", newCommand.Table, tt.command.Table)
			}
			if !bytes.Equal(newCommand.Row, tt.command.Row) {
				t.Errorf("Row mismatch: got %q, want %q", newCommand.Row, tt.command.Row)
			}
			if !bytes.Equal(newCommand.Payload, tt.command.Payload) {
				t.Errorf("Payload mismatch: got %v, want %v", newCommand.Payload, tt.command.Payload)
			}

			if tt.command.SizeBytes() != len(data) {
				t.Errorf("SizeBytes() = %d, but serialized data length = %d",
					tt.command.SizeBytes(), len(data))
			}
		})
	}
}

// TestDeserializeErrors tests error cases in Deserialize
func TestDeserializeErrors(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		expectedErr string
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectedErr: "data too short for command",
		},
		{
			name:        "Data too short (less than header)",
			data:        []byte{1, 2, 3, 4, 5},
			expectedErr: "data too short for command",
		},
		{
			name: "Invalid table length",
			data: func() []byte {
				data := make([]byte, commandHeaderSize)
				data[0] = byte(CommandTCommit)
				binary.BigEndian.PutUint32(data[9:13], 1000)
				return data
			}(),
			expectedErr: "data too short for table of length 1000",
		},
		{
			name: "Invalid row length",
			data: func() []byte {
				data := make([]byte, commandHeaderSize)
				data[0] = byte(CommandTCommit)
				binary.BigEndian.PutUint32(data[13:17], 7)
				return data
			}(),
			expectedErr: "data too short for row of length 7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cmd Command
			err := cmd.Deserialize(tt.data)

			if err == nil {
				t.Fatalf("Expected error but got nil")
			}
			if err.Error() != tt.expectedErr {
				t.Errorf("Expected error %q, got %q", tt.expectedErr, err.Error())
			}
		})
	}
}

// TestBinaryFormat tests the exact binary format of serialized commands
func TestBinaryFormat(t *testing.T) {
	cmd := Command{
		Type:      CommandTCommit,
		Timestamp: 12345,
		Table:     []byte("tab"),
		Row:       []byte("rowkey"),
		Payload:   []byte("data"),
	}

	expected := make([]byte, cmd.SizeBytes())
	expected[0] = byte(CommandTCommit)
	binary.BigEndian.PutUint64(expected[1:9], 12345)
	binary.BigEndian.PutUint32(expected[9:13], 3)
	copy(expected[13:16], "tab")
	binary.BigEndian.PutUint32(expected[16:20], 6)
	copy(expected[20:26], "rowkey")
	copy(expected[26:], "data")

	serialized := cmd.Serialize()
	if !bytes.Equal(serialized, expected) {
		t.Errorf("Binary format does not match:\nGot:      %v\nExpected: %v", serialized, expected)
	}
}

// TestMutationsCodec tests the payload encoding of Commit commands
func TestMutationsCodec(t *testing.T) {
	mutations := []store.Mutation{
		{Column: []byte("f:a"), Value: []byte("1")},
		{IsDelete: true, Column: []byte("f:b")},
		{Column: []byte("f:\x00c"), Value: []byte{}},
	}

	decoded, err := DecodeMutations(EncodeMutations(mutations))
	if err != nil {
		t.Fatalf("DecodeMutations() error = %v", err)
	}
	if len(decoded) != len(mutations) {
		t.Fatalf("Expected %d mutations, got %d", len(mutations), len(decoded))
	}
	for i := range mutations {
		if decoded[i].IsDelete != mutations[i].IsDelete ||
			!bytes.Equal(decoded[i].Column, mutations[i].Column) ||
			!bytes.Equal(decoded[i].Value, mutations[i].Value) {
			t.Errorf("Mutation %d mismatch: got %+v, want %+v", i, decoded[i], mutations[i])
		}
	}

	// a truncated payload is rejected
	payload := EncodeMutations(mutations)
	if _, err := DecodeMutations(payload[:len(payload)-1]); err == nil {
		t.Errorf("Expected error for truncated payload")
	}
	if _, err := DecodeMutations(append(payload, 0)); err == nil {
		t.Errorf("Expected error for trailing bytes")
	}
}

// TestDescriptorCodec tests the payload encoding of CreateTable commands
func TestDescriptorCodec(t *testing.T) {
	desc := store.TableDescriptor{
		Name:     []byte("users"),
		RegionID: 7,
		Families: []store.ColumnDescriptor{
			{Name: []byte("info"), MaxVersions: 3, Compression: "NONE", BloomFilterType: "NONE", TimeToLive: 60},
		},
	}

	payload, err := EncodeDescriptor(desc)
	if err != nil {
		t.Fatalf("EncodeDescriptor() error = %v", err)
	}
	decoded, err := DecodeDescriptor(payload)
	if err != nil {
		t.Fatalf("DecodeDescriptor() error = %v", err)
	}
	if !reflect.DeepEqual(decoded, desc) {
		t.Errorf("Descriptor mismatch: got %+v, want %+v", decoded, desc)
	}
}
