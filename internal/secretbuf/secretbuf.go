// Package secretbuf wraps sensitive byte slices — unlock keys and
// secret payloads — so that zeroisation on eviction and on
// failed-unlock clear is automatic, and copies are explicit.
package secretbuf

// Buffer owns a sensitive byte slice. Callers must not retain the slice
// passed to New; Buffer takes ownership of it.
type Buffer struct {
	b []byte
}

// New takes ownership of b and returns a Buffer wrapping it.
func New(b []byte) *Buffer {
	return &Buffer{b: b}
}

// Bytes returns the underlying slice. Callers that need to retain data
// beyond the Buffer's lifetime must Clone it.
func (k *Buffer) Bytes() []byte {
	if k == nil {
		return nil
	}
	return k.b
}

// Clone returns a copy of the underlying bytes, independent of this
// Buffer's lifecycle.
func (k *Buffer) Clone() []byte {
	if k == nil {
		return nil
	}
	out := make([]byte, len(k.b))
	copy(out, k.b)
	return out
}

// Len reports the length of the wrapped slice.
func (k *Buffer) Len() int {
	if k == nil {
		return 0
	}
	return len(k.b)
}

// Zeroise overwrites every byte with zero. Safe to call more than once.
func (k *Buffer) Zeroise() {
	if k == nil {
		return
	}
	for i := range k.b {
		k.b[i] = 0
	}
}

// Redacted returns a fixed placeholder suitable for logging — never the
// wrapped bytes or their length-revealing representation.
func (k *Buffer) Redacted() string {
	return "<redacted>"
}
