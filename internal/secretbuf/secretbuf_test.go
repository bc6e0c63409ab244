package secretbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZeroiseOverwritesBytes(t *testing.T) {
	b := New([]byte("sensitive"))
	b.Zeroise()
	assert.Equal(t, make([]byte, 9), b.Bytes())
	b.Zeroise() // safe to repeat
}

func TestCloneIsIndependent(t *testing.T) {
	b := New([]byte("key"))
	clone := b.Clone()
	b.Zeroise()
	assert.Equal(t, []byte("key"), clone)
}

func TestNilBufferIsSafe(t *testing.T) {
	var b *Buffer
	assert.Nil(t, b.Bytes())
	assert.Nil(t, b.Clone())
	assert.Equal(t, 0, b.Len())
	b.Zeroise()
}

func TestRedactedNeverRevealsContentOrLength(t *testing.T) {
	assert.Equal(t, New([]byte("a")).Redacted(), New([]byte("much-longer-key")).Redacted())
}
