package codec

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/netframe/coreengine/internal/metrics"
)

// FrameReader implements the inbound framing state machine (§4.B):
// ReadStart(i) -> ReadLength -> ReadData(remaining) -> ReadEnd(i). It is
// not safe for concurrent use — a pipeline's reads are already serialized
// by its single I/O-driver goroutine (§5).
type FrameReader struct {
	r          io.Reader
	startCode  []byte
	endCode    []byte
	bufferSize int

	one [1]byte
}

// NewFrameReader wraps r with the framing state machine. bufferSize bounds
// each individual chunked read of frame data.
func NewFrameReader(r io.Reader, startCode, endCode []byte, bufferSize int) *FrameReader {
	if bufferSize <= 0 {
		bufferSize = 4096
	}
	return &FrameReader{r: r, startCode: startCode, endCode: endCode, bufferSize: bufferSize}
}

// ReadFrame blocks until one valid frame's payload bytes are returned, or
// a transport error (including io.EOF) occurs. Corrupted frames (bad
// start/end/length) are dropped silently and framing restarts, per §4.B
// and §7's framing error class — only a genuine read error from the
// underlying reader is surfaced to the caller.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	for {
		if err := fr.readStart(); err != nil {
			return nil, err
		}
		length, err := fr.readLength()
		if err != nil {
			return nil, err
		}
		data, err := fr.readData(length)
		if err != nil {
			return nil, err
		}
		matched, err := fr.readEnd()
		if err != nil {
			return nil, err
		}
		if matched {
			return data, nil
		}
		metrics.FramesDroppedCounter.Inc()
		// Mismatched end code: drop this frame and restart from
		// ReadStart(0), exactly as a mismatched start byte would.
	}
}

// readStart matches fr.startCode byte by byte; any non-matching byte
// resets the match index to 0 without re-scanning it.
func (fr *FrameReader) readStart() error {
	matched := 0
	for matched < len(fr.startCode) {
		if _, err := io.ReadFull(fr.r, fr.one[:]); err != nil {
			return fmt.Errorf("codec: read start code: %w", err)
		}
		if fr.one[0] == fr.startCode[matched] {
			matched++
		} else {
			metrics.FramesDroppedCounter.Inc()
			matched = 0
		}
	}
	return nil
}

func (fr *FrameReader) readLength() (uint64, error) {
	var buf [lengthFieldLen]byte
	if _, err := io.ReadFull(fr.r, buf[:]); err != nil {
		return 0, fmt.Errorf("codec: read length: %w", err)
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func (fr *FrameReader) readData(length uint64) ([]byte, error) {
	data := make([]byte, 0, length)
	remaining := length
	chunk := make([]byte, fr.bufferSize)
	for remaining > 0 {
		n := uint64(fr.bufferSize)
		if n > remaining {
			n = remaining
		}
		read, err := io.ReadFull(fr.r, chunk[:n])
		if err != nil {
			return nil, fmt.Errorf("codec: read data: %w", err)
		}
		data = append(data, chunk[:read]...)
		remaining -= uint64(read)
	}
	return data, nil
}

func (fr *FrameReader) readEnd() (bool, error) {
	buf := make([]byte, len(fr.endCode))
	if _, err := io.ReadFull(fr.r, buf); err != nil {
		return false, fmt.Errorf("codec: read end code: %w", err)
	}
	for i, b := range buf {
		if b != fr.endCode[i] {
			return false, nil
		}
	}
	return true, nil
}
