package gateway

import (
	"testing"

	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category Category
		message  string
	}{
		{"store not found", store.NewError(store.RetCNotFound, "table \"x\" does not exist"), CategoryNotFound, "table \"x\" does not exist"},
		{"store already exists", store.NewError(store.RetCAlreadyExists, "in use"), CategoryAlreadyExists, "in use"},
		{"store invalid argument", store.NewError(store.RetCInvalidArgument, "bad family"), CategoryIllegalArgument, "bad family"},
		{"store internal", store.NewError(store.RetCInternalError, "disk on fire"), CategoryIOError, "disk on fire"},
		{"store unsupported", store.NewError(store.RetCUnsupportedOperation, "no iterators"), CategoryIOError, "no iterators"},
		{"wrapped store error", errors.Wrap(store.NewError(store.RetCNotFound, "gone"), "lookup"), CategoryNotFound, "gone"},
		{"plain error", errors.New("connection reset"), CategoryIOError, "connection reset"},
		{"gateway error", NewError(CategoryIllegalArgument, MsgInvalidScanner), CategoryIllegalArgument, MsgInvalidScanner},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Translate(tt.err)
			var gwErr *Error
			if assert.True(t, errors.As(err, &gwErr)) {
				assert.Equal(t, tt.category, gwErr.Category)
				assert.Equal(t, tt.message, gwErr.Message)
			}
		})
	}

	assert.NoError(t, Translate(nil))
}

func TestCategoryPredicates(t *testing.T) {
	assert.True(t, IsNotFound(NewError(CategoryNotFound, "")))
	assert.False(t, IsNotFound(NewError(CategoryIllegalArgument, "")))
	assert.True(t, IsIllegalArgument(NewError(CategoryIllegalArgument, "")))
	assert.True(t, IsAlreadyExists(NewError(CategoryAlreadyExists, "")))
	assert.True(t, IsIOError(errors.New("boom")))
	assert.False(t, IsIOError(nil))
	assert.False(t, IsNotFound(nil))

	assert.True(t, CategoryIOError.Valid())
	assert.False(t, Category(0).Valid())
	assert.False(t, Category(9).Valid())
	assert.Equal(t, "NotFound: end of scanner reached", NewError(CategoryNotFound, MsgEndOfScanner).Error())
	assert.Equal(t, "NotFound", NewError(CategoryNotFound, "").Error())
}
