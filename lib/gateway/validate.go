package gateway

import "unicode/utf8"

// validText rejects identifiers that are not valid UTF-8.
func validText(identifiers ...[]byte) error {
	for _, id := range identifiers {
		if !utf8.Valid(id) {
			return NewError(CategoryIllegalArgument, MsgInvalidEncoding)
		}
	}
	return nil
}

// validTable additionally rejects the empty table name.
func validTable(table []byte) error {
	if len(table) == 0 {
		return NewError(CategoryIllegalArgument, "table name must not be empty")
	}
	return validText(table)
}

func validNumVersions(numVersions int32) error {
	if numVersions < 1 {
		return NewError(CategoryIllegalArgument, "number of versions must be at least 1")
	}
	return nil
}
