// Package serializer encodes common.Message values for the wire. All three
// implementations satisfy IRPCSerializer and are stateless, so one instance
// can be shared by every connection of a client or server.
//
// Formats:
//
//   - binary (NewBinarySerializer): the default. One byte message type, a 32 bit
//     flag word naming the fields that follow, then the present fields in a fixed
//     order. Identifiers and values are length prefixed byte strings, lists
//     (columns, mutations, families, regions, cells) start with an element count
//     that is checked against the remaining input before anything is allocated.
//     A present but empty Value, Row, ... decodes as an empty, non-nil slice, so a
//     put of an empty value stays distinguishable from a missing value.
//
//   - json (NewJSONSerializer): human readable, message types are written by name
//     (e.g. "scannerGet"). Handy with the http transport and curl.
//
//   - gob (NewGOBSerializer): encoding/gob, mostly useful as a reference for the
//     other two in tests.
//
// Deserialize always resets the target message first, a reused Message never
// carries fields of an earlier request.
package serializer
