package seederrors

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessages(t *testing.T) {
	tests := map[string]struct {
		err      error
		expected string
	}{
		"not found with type": {
			err:      &ErrNotFound{Type: "manifest", Value: "temp/manifest.txt"},
			expected: `resource "temp/manifest.txt" of type "manifest" does not exist`,
		},
		"not found with message": {
			err:      &ErrNotFound{Value: "users_1.csv", Message: "was it generated?"},
			expected: `resource "users_1.csv" does not exist; was it generated?`,
		},
		"already exists": {
			err:      &ErrAlreadyExists{Type: "table", Value: "social_user"},
			expected: `resource "social_user" of type "table" already exists`,
		},
		"invalid argument": {
			err:      &ErrInvalidArgument{Name: "total", Value: 0, Message: "must be positive"},
			expected: `value 0 is invalid for field "total"; must be positive`,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.err.Error())
		})
	}
}

func TestPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))

	cause := fmt.Errorf("bad row")
	err := errors.WithMessage(Permanent(cause), "importing users_1.csv")
	assert.True(t, IsPermanent(err))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, IsPermanent(cause))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(errors.Wrap(&ErrNotFound{Type: "manifest"}, "draining")))
	assert.False(t, IsNotFound(fmt.Errorf("other")))
}

func TestIsAlreadyExists(t *testing.T) {
	assert.True(t, IsAlreadyExists(Permanent(&ErrAlreadyExists{Type: "unique property", Value: "SocialUser"})))
	assert.False(t, IsAlreadyExists(&ErrNotFound{}))
}
