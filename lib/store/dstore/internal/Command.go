package internal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/rKV/lib/db"
	"github.com/ValentinKolb/rKV/lib/store"
)

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTCreateTable CommandType = iota // Create a table from a prepared descriptor.
	CommandTDeleteTable                    // Drop a table and all its cells.
	CommandTCommit                         // Apply a batch update to one row.
	CommandTDeleteRow                      // Delete all cells of a row up to a timestamp.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTCreateTable:
		return "CreateTable"
	case CommandTDeleteTable:
		return "DeleteTable"
	case CommandTCommit:
		return "Commit"
	case CommandTDeleteRow:
		return "DeleteRow"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// ToDBFeature converts a CommandType to the db.Feature flags the command needs.
// This can be used for checking if the database supports a certain operation.
func (ct CommandType) ToDBFeature() (db.Feature, error) {
	switch ct {
	case CommandTCreateTable:
		return db.FeatureGet | db.FeatureSet, nil
	case CommandTDeleteTable, CommandTCommit, CommandTDeleteRow:
		return db.FeatureIterate | db.FeatureBatch | db.FeatureDeleteRange, nil
	default:
		return 0, fmt.Errorf("unknown command type %d", ct)
	}
}

// Command represents a command to be executed by the state machine (a single entry in the raft log).
// Timestamp is always resolved by the proposer, replicas never read their own clock for writes.
type Command struct {
	Type      CommandType
	Timestamp uint64
	Table     []byte
	Row       []byte
	Payload   []byte // descriptor json (CreateTable) or encoded mutations (Commit)
}

const commandHeaderSize = 1 + 8 + 4 + 4 // Type + Timestamp + TableLen + RowLen

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	return commandHeaderSize + len(command.Table) + len(command.Row) + len(command.Payload)
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 8 bytes for the timestamp,
// 4 bytes for table length, N bytes table,
// 4 bytes for row length, N bytes row,
// remaining bytes payload (optional)
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)
	binary.BigEndian.PutUint64(result[1:9], command.Timestamp)

	pos := 9
	binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(command.Table)))
	pos += 4
	pos += copy(result[pos:], command.Table)

	binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(command.Row)))
	pos += 4
	pos += copy(result[pos:], command.Row)

	copy(result[pos:], command.Payload)
	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < commandHeaderSize {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])
	command.Timestamp = binary.BigEndian.Uint64(data[1:9])

	rest := data[9:]
	var err error
	if command.Table, rest, err = readField(rest, "table"); err != nil {
		return err
	}
	if command.Row, rest, err = readField(rest, "row"); err != nil {
		return err
	}

	if len(rest) > 0 {
		command.Payload = append(command.Payload[:0], rest...)
	} else {
		command.Payload = nil
	}
	return nil
}

// readField reads a 4 byte length prefixed field and copies it out of data
func readField(data []byte, name string) ([]byte, []byte, error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("data too short for %s length", name)
	}
	n := binary.BigEndian.Uint32(data[:4])
	if len(data)-4 < int(n) {
		return nil, nil, fmt.Errorf("data too short for %s of length %d", name, n)
	}
	field := make([]byte, n)
	copy(field, data[4:4+n])
	return field, data[4+n:], nil
}

// --------------------------------------------------------------------------
// Payload codecs
// --------------------------------------------------------------------------

// EncodeDescriptor encodes a table descriptor for a CreateTable command
func EncodeDescriptor(desc store.TableDescriptor) ([]byte, error) {
	return json.Marshal(desc)
}

// DecodeDescriptor decodes the payload of a CreateTable command
func DecodeDescriptor(payload []byte) (store.TableDescriptor, error) {
	var desc store.TableDescriptor
	err := json.Unmarshal(payload, &desc)
	return desc, err
}

// EncodeMutations encodes the mutations of a Commit command:
// 4 bytes count, then per mutation 1 byte delete flag,
// 4 bytes column length, column, 4 bytes value length, value
func EncodeMutations(mutations []store.Mutation) []byte {
	size := 4
	for _, m := range mutations {
		size += 1 + 4 + len(m.Column) + 4 + len(m.Value)
	}
	buf := make([]byte, 0, size)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(mutations)))
	for _, m := range mutations {
		if m.IsDelete {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(m.Column)))
		buf = append(buf, m.Column...)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(m.Value)))
		buf = append(buf, m.Value...)
	}
	return buf
}

// DecodeMutations decodes the payload of a Commit command
func DecodeMutations(payload []byte) ([]store.Mutation, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("data too short for mutation count")
	}
	count := binary.BigEndian.Uint32(payload[:4])
	rest := payload[4:]

	mutations := make([]store.Mutation, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(rest) < 1 {
			return nil, fmt.Errorf("data too short for mutation %d", i)
		}
		m := store.Mutation{IsDelete: rest[0] == 1}
		var err error
		if m.Column, rest, err = readField(rest[1:], "column"); err != nil {
			return nil, err
		}
		if m.Value, rest, err = readField(rest, "value"); err != nil {
			return nil, err
		}
		if m.IsDelete {
			m.Value = nil
		}
		mutations = append(mutations, m)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%d trailing bytes after mutations", len(rest))
	}
	return mutations, nil
}
