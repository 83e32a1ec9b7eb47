package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	assert.Equal(t, ErrConflict, Kind(fmt.Errorf("session full: %w", ErrConflict)))
	assert.Equal(t, ErrPoolExhausted, Kind(fmt.Errorf("start: %w", fmt.Errorf("pool: %w", ErrPoolExhausted))))
	assert.Nil(t, Kind(errors.New("connection reset")))
	assert.Nil(t, Kind(nil))
}
