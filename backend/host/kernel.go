package host

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math"

	"github.com/gogpu/dispatch/internal/shader"
)

// ErrNilKernel is returned when registering a nil kernel.
var ErrNilKernel = errors.New("host: nil kernel")

// Kernel computes one work item. id is the global invocation index and
// buffers holds the bound storage buffers in slot order. Kernels for
// different ids run concurrently and must only write the elements they
// own.
type Kernel func(id uint32, buffers [][]byte)

// Fingerprint identifies a shader source independent of its encoding.
type Fingerprint [32]byte

// String returns the first eight bytes in hex.
func (f Fingerprint) String() string { return hex.EncodeToString(f[:8]) }

// FingerprintSource hashes the normalized text of src. Sources that differ
// only in byte order mark, UTF-16 encoding or surrounding whitespace share
// a fingerprint.
func FingerprintSource(src []byte) (Fingerprint, error) {
	text, err := shader.Normalize(src)
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint(shader.KeyOf(text)), nil
}

// LoadF32 reads element i of an array<f32> buffer.
func LoadF32(buf []byte, i uint32) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[uint64(i)*4:]))
}

// StoreF32 writes element i of an array<f32> buffer.
func StoreF32(buf []byte, i uint32, v float32) {
	binary.LittleEndian.PutUint32(buf[uint64(i)*4:], math.Float32bits(v))
}

// LoadU32 reads element i of an array<u32> buffer.
func LoadU32(buf []byte, i uint32) uint32 {
	return binary.LittleEndian.Uint32(buf[uint64(i)*4:])
}

// StoreU32 writes element i of an array<u32> buffer.
func StoreU32(buf []byte, i uint32, v uint32) {
	binary.LittleEndian.PutUint32(buf[uint64(i)*4:], v)
}
