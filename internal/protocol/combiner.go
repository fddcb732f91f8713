package protocol

import (
	"encoding/binary"
	"fmt"
)

// Combine applies the TLV scheme (u64_le(len) || bytes) uniformly to every
// field of a File inner payload, including the one-byte file sub-tag, and
// to the message field of a Binary inner payload (whose trailing data is
// appended unwrapped by EncodeBinary), so encoder and decoder share one
// routine. This mirrors the
// source's own Combiner::append/divide call sites (DataHandler::send_files,
// FileSendingJob::working, NetworkSession::received_file), which wrap every
// field the same way with no observed exception.
func Combine(fields ...[]byte) []byte {
	total := 0
	for _, f := range fields {
		total += 8 + len(f)
	}
	out := make([]byte, 0, total)
	for _, f := range fields {
		var lenBuf [8]byte
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(f)))
		out = append(out, lenBuf[:]...)
		out = append(out, f...)
	}
	return out
}

// Divide splits a Combine-produced buffer back into its fields. It
// consumes exactly n fields or returns an error; any bytes beyond the nth
// field's length are left unconsumed and returned as the remainder.
func Divide(buf []byte, n int) (fields [][]byte, remainder []byte, err error) {
	fields = make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		if len(buf) < 8 {
			return nil, nil, fmt.Errorf("protocol: short buffer reading field %d length", i)
		}
		l := binary.LittleEndian.Uint64(buf[:8])
		buf = buf[8:]
		if uint64(len(buf)) < l {
			return nil, nil, fmt.Errorf("protocol: short buffer reading field %d body (want %d, have %d)", i, l, len(buf))
		}
		fields = append(fields, buf[:l])
		buf = buf[l:]
	}
	return fields, buf, nil
}

// U64LE encodes n as 8 little-endian bytes, used for lengths/indices that
// themselves travel wrapped in a tlv field.
func U64LE(n uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], n)
	return b[:]
}

// ParseU64LE decodes 8 little-endian bytes into a uint64.
func ParseU64LE(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("protocol: expected 8 bytes for u64, got %d", len(b))
	}
	return binary.LittleEndian.Uint64(b), nil
}
