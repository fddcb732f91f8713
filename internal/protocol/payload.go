package protocol

import "fmt"

// EncodeBinary builds the inner Binary payload: tlv(message) || data. The
// trailing binary blob is not itself length-prefixed — the frame's own
// length field already bounds it, so nothing is gained by wrapping it a
// second time.
func EncodeBinary(message string, data []byte) []byte {
	out := Combine([]byte(message))
	return append(out, data...)
}

// DecodeBinary reverses EncodeBinary.
func DecodeBinary(payload []byte) (message string, data []byte, err error) {
	fields, rest, err := Divide(payload, 1)
	if err != nil {
		return "", nil, fmt.Errorf("protocol: decode binary: %w", err)
	}
	return string(fields[0]), rest, nil
}

// EncodeFileStart builds the inner File/Start payload:
// tlv(guid) || tlv(subtag) || tlv(u64_le(count)).
func EncodeFileStart(guid string, count uint64) []byte {
	return Combine([]byte(guid), []byte{byte(FileStart)}, U64LE(count))
}

// DecodeFileHeader parses guid and sub-tag common to every File frame,
// returning the remainder for sub-tag-specific parsing.
func DecodeFileHeader(payload []byte) (guid string, tag FileSubTag, rest []byte, err error) {
	fields, rest, err := Divide(payload, 2)
	if err != nil {
		return "", 0, nil, fmt.Errorf("protocol: decode file header: %w", err)
	}
	if len(fields[1]) != 1 {
		return "", 0, nil, fmt.Errorf("protocol: file sub-tag must be 1 byte, got %d", len(fields[1]))
	}
	return string(fields[0]), FileSubTag(fields[1][0]), rest, nil
}

// DecodeFileStartCount parses the count field out of a File/Start frame's
// remainder (after DecodeFileHeader).
func DecodeFileStartCount(rest []byte) (uint64, error) {
	fields, _, err := Divide(rest, 1)
	if err != nil {
		return 0, fmt.Errorf("protocol: decode file start count: %w", err)
	}
	return ParseU64LE(fields[0])
}

// EncodeFileSuccess builds the inner File/Success payload:
// tlv(guid) || tlv(subtag) || tlv(u64_le(index)) || tlv(message) || tlv(fileBytes).
func EncodeFileSuccess(guid string, index uint64, message string, fileBytes []byte) []byte {
	return Combine([]byte(guid), []byte{byte(FileSuccess)}, U64LE(index), []byte(message), fileBytes)
}

// DecodeFileSuccessBody parses index, message, file bytes out of a
// File/Success frame's remainder (after DecodeFileHeader).
func DecodeFileSuccessBody(rest []byte) (index uint64, message string, fileBytes []byte, err error) {
	fields, _, err := Divide(rest, 3)
	if err != nil {
		return 0, "", nil, fmt.Errorf("protocol: decode file success body: %w", err)
	}
	index, err = ParseU64LE(fields[0])
	if err != nil {
		return 0, "", nil, err
	}
	return index, string(fields[1]), fields[2], nil
}

// EncodeFileFailure builds the inner File/Failure payload:
// tlv(guid) || tlv(subtag) || tlv(u64_le(index)) || tlv(message).
func EncodeFileFailure(guid string, index uint64, message string) []byte {
	return Combine([]byte(guid), []byte{byte(FileFailure)}, U64LE(index), []byte(message))
}

// DecodeFileFailureBody parses index and message out of a File/Failure
// frame's remainder (after DecodeFileHeader).
func DecodeFileFailureBody(rest []byte) (index uint64, message string, err error) {
	fields, _, err := Divide(rest, 2)
	if err != nil {
		return 0, "", fmt.Errorf("protocol: decode file failure body: %w", err)
	}
	index, err = ParseU64LE(fields[0])
	if err != nil {
		return 0, "", err
	}
	return index, string(fields[1]), nil
}
