package ddcerr_test

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rockowitz/ddcutil-sub002/ddcerr"
)

func TestWrapPreservesErrno(t *testing.T) {
	err := ddcerr.Wrap("open", 6, ddcerr.IO, syscall.EBUSY)
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.EBUSY)
	code, ok := ddcerr.Of(err)
	assert.True(t, ok)
	assert.Equal(t, ddcerr.IO, code)
}

func TestOfBareCode(t *testing.T) {
	var err error = ddcerr.Locked
	code, ok := ddcerr.Of(err)
	assert.True(t, ok)
	assert.Equal(t, ddcerr.Locked, code)
}

func TestIs(t *testing.T) {
	err := ddcerr.New("set_slave_address", ddcerr.Flocked)
	assert.True(t, ddcerr.Is(err, ddcerr.Flocked))
	assert.False(t, ddcerr.Is(err, ddcerr.IO))
}

func TestOfNil(t *testing.T) {
	_, ok := ddcerr.Of(nil)
	assert.False(t, ok)
}
