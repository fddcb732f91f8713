package codec

import (
	"encoding/binary"
	"fmt"
	"io"
)

// DefaultStartCode and DefaultEndCode are the §3 wire defaults.
var (
	DefaultStartCode = []byte{0xFD, 0xFD, 0xFD, 0xFD}
	DefaultEndCode   = []byte{0xFC, 0xFC, 0xFC, 0xFC}
)

const sentinelLen = 4
const lengthFieldLen = 8

// BuildFrame assembles start_code || u64_le(len) || payload || end_code.
func BuildFrame(startCode, endCode, payload []byte) []byte {
	out := make([]byte, 0, len(startCode)+lengthFieldLen+len(payload)+len(endCode))
	out = append(out, startCode...)
	var lenBuf [lengthFieldLen]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(payload)))
	out = append(out, lenBuf[:]...)
	out = append(out, payload...)
	out = append(out, endCode...)
	return out
}

// WriteFrame writes one complete frame to w, chunked so that no single
// underlying Write call exceeds bufferSize — the spec's "the write is
// chunked by the configured socket buffer size so each individual OS send
// does not exceed it" (§4.B). The whole frame is written before returning;
// callers are responsible for ensuring only one goroutine writes to w at a
// time (the Top-priority worker, per §3).
func WriteFrame(w io.Writer, startCode, endCode, payload []byte, bufferSize int) error {
	if bufferSize <= 0 {
		bufferSize = 4096
	}
	frame := BuildFrame(startCode, endCode, payload)
	for len(frame) > 0 {
		n := bufferSize
		if n > len(frame) {
			n = len(frame)
		}
		written, err := w.Write(frame[:n])
		if err != nil {
			return fmt.Errorf("codec: write frame chunk: %w", err)
		}
		if written == 0 {
			return fmt.Errorf("codec: write frame chunk: zero bytes written")
		}
		frame = frame[written:]
	}
	return nil
}
