package codec

import (
	"bytes"
	"io"
	"testing"
)

func TestBuildFrame_WriteFrame_ReadFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello, frame")
	if err := WriteFrame(&buf, DefaultStartCode, DefaultEndCode, payload, 4); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	fr := NewFrameReader(&buf, DefaultStartCode, DefaultEndCode, 4)
	got, err := fr.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("got %q, want %q", got, payload)
	}
}

func TestReadFrame_DropsCorruptionAndRecovers(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xAB}) // garbage byte before a valid frame
	payload := []byte("still here")
	if err := WriteFrame(&buf, DefaultStartCode, DefaultEndCode, payload, 1024); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	fr := NewFrameReader(&buf, DefaultStartCode, DefaultEndCode, 1024)
	got, err := fr.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("got %q, want %q", got, payload)
	}
}

func TestReadFrame_BadEndCodeDropsAndContinues(t *testing.T) {
	var buf bytes.Buffer
	// Hand-build a frame with a corrupted end code, then a valid frame.
	bad := BuildFrame(DefaultStartCode, []byte{0x00, 0x00, 0x00, 0x00}, []byte("dropped"))
	buf.Write(bad)
	good := []byte("kept")
	if err := WriteFrame(&buf, DefaultStartCode, DefaultEndCode, good, 1024); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	fr := NewFrameReader(&buf, DefaultStartCode, DefaultEndCode, 1024)
	got, err := fr.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got, good) {
		t.Errorf("got %q, want %q", got, good)
	}
}

func TestReadFrame_EOFSurfacedAsError(t *testing.T) {
	fr := NewFrameReader(bytes.NewReader(nil), DefaultStartCode, DefaultEndCode, 1024)
	if _, err := fr.ReadFrame(); err == nil {
		t.Fatal("expected error on empty stream")
	}
}

func TestCompressDecompress_RoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("abcdefgh"), 200)
	compressed, err := Compress(payload)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if len(compressed) >= len(payload) {
		t.Errorf("expected compression to shrink repetitive data, got %d >= %d", len(compressed), len(payload))
	}
	got, err := Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("decompressed payload does not match original")
	}
}

func TestCompress_FallsBackToRawWhenNotSmaller(t *testing.T) {
	payload := []byte{0x01}
	tagged, err := Compress(payload)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if tagged[0] != compressionRaw {
		t.Errorf("expected raw tag for tiny payload, got %#x", tagged[0])
	}
	got, err := Decompress(tagged)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("raw round trip mismatch")
	}
}

func TestEncryptDecryptCBC_RoundTrip(t *testing.T) {
	key, iv, err := GenerateKeyIV()
	if err != nil {
		t.Fatalf("GenerateKeyIV: %v", err)
	}
	plaintext := []byte("a connection-mode frame travels in clear, this one does not")
	ciphertext, err := EncryptCBC(key, iv, plaintext)
	if err != nil {
		t.Fatalf("EncryptCBC: %v", err)
	}
	if bytes.Equal(ciphertext, plaintext) {
		t.Error("ciphertext should not equal plaintext")
	}
	got, err := DecryptCBC(key, iv, ciphertext)
	if err != nil {
		t.Fatalf("DecryptCBC: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Error("decrypted plaintext mismatch")
	}
}

func TestDecryptCBC_RejectsBadPadding(t *testing.T) {
	key, iv, err := GenerateKeyIV()
	if err != nil {
		t.Fatalf("GenerateKeyIV: %v", err)
	}
	garbage := make([]byte, 32)
	if _, err := DecryptCBC(key, iv, garbage); err == nil {
		t.Fatal("expected error decrypting garbage ciphertext")
	}
}

var _ io.Reader = (*bytes.Reader)(nil)
