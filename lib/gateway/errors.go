package gateway

import (
	"fmt"

	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/cockroachdb/errors"
)

// Category is the closed set of error kinds visible to gateway callers.
type Category uint8

const (
	// CategoryIOError signals a failure of the store or of the communication with it.
	CategoryIOError Category = iota + 1
	// CategoryIllegalArgument signals a malformed request (bad identifier, invalid scanner id, bad parameter).
	CategoryIllegalArgument
	// CategoryNotFound signals that a table, row or cell is absent, or that a scanner is exhausted.
	CategoryNotFound
	// CategoryAlreadyExists signals a conflicting table creation.
	CategoryAlreadyExists
)

func (c Category) String() string {
	switch c {
	case CategoryIOError:
		return "IOError"
	case CategoryIllegalArgument:
		return "IllegalArgument"
	case CategoryNotFound:
		return "NotFound"
	case CategoryAlreadyExists:
		return "AlreadyExists"
	default:
		return fmt.Sprintf("Unknown(%d)", c)
	}
}

// Valid reports whether c is one of the four categories
func (c Category) Valid() bool {
	return c >= CategoryIOError && c <= CategoryAlreadyExists
}

// Messages used by the gateway itself
const (
	MsgInvalidScanner   = "scanner ID is invalid"
	MsgEndOfScanner     = "end of scanner reached"
	MsgTableInUse       = "table name already in use"
	MsgInvalidEncoding  = "invalid UTF-8 encoding in row or column name"
	MsgHandlesExhausted = "scanner handle space exhausted"
)

// Error is the only error type returned by IGateway implementations.
type Error struct {
	Category Category
	Message  string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Category.String()
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// NewError creates a gateway error
func NewError(category Category, msg string) *Error {
	return &Error{Category: category, Message: msg}
}

// Translate converts any error into a *Error. Store errors are mapped by their
// return code, gateway errors pass through unchanged and everything else becomes
// an IOError carrying the original message.
func Translate(err error) error {
	if err == nil {
		return nil
	}

	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr
	}

	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		switch storeErr.Code {
		case store.RetCNotFound:
			return NewError(CategoryNotFound, storeErr.Msg)
		case store.RetCAlreadyExists:
			return NewError(CategoryAlreadyExists, storeErr.Msg)
		case store.RetCInvalidArgument:
			return NewError(CategoryIllegalArgument, storeErr.Msg)
		default:
			return NewError(CategoryIOError, storeErr.Msg)
		}
	}

	return NewError(CategoryIOError, err.Error())
}

// CategoryOf returns the category of a (translated) error, 0 for nil.
func CategoryOf(err error) Category {
	if err == nil {
		return 0
	}
	var gwErr *Error
	if errors.As(Translate(err), &gwErr) {
		return gwErr.Category
	}
	return CategoryIOError
}

// IsIOError returns true if err is an IOError
func IsIOError(err error) bool {
	return err != nil && CategoryOf(err) == CategoryIOError
}

// IsIllegalArgument returns true if err is an IllegalArgument error
func IsIllegalArgument(err error) bool {
	return CategoryOf(err) == CategoryIllegalArgument
}

// IsNotFound returns true if err is a NotFound error
func IsNotFound(err error) bool {
	return CategoryOf(err) == CategoryNotFound
}

// IsAlreadyExists returns true if err is an AlreadyExists error
func IsAlreadyExists(err error) bool {
	return CategoryOf(err) == CategoryAlreadyExists
}
