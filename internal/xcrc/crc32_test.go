package xcrc

import "testing"

func TestChecksumKnownVector(t *testing.T) {
	// "123456789" -> 0xCBF43926 is the standard IEEE CRC32 check value.
	got := Checksum([]byte("123456789"))
	if got != 0xCBF43926 {
		t.Fatalf("got %#x, want 0xcbf43926", got)
	}
}

func TestDigestHexRoundTrip(t *testing.T) {
	crc := Checksum([]byte("the quick brown fox"))
	hex := DigestHex(crc)
	parsed, err := ParseDigestHex(hex)
	if err != nil {
		t.Fatal(err)
	}
	if parsed != crc {
		t.Fatalf("got %#x, want %#x", parsed, crc)
	}
}

func TestVerifyChunkChecksum(t *testing.T) {
	payload := []byte("compressed-bytes-stand-in")
	crc := ChunkChecksum(payload)
	if !VerifyChunkChecksum(payload, crc) {
		t.Fatal("expected checksum to verify")
	}
	if VerifyChunkChecksum(payload, crc+1) {
		t.Fatal("expected checksum mismatch to be detected")
	}
}

func TestUpdateMatchesWholeChecksum(t *testing.T) {
	a, b := []byte("hello "), []byte("world")
	whole := Checksum(append(append([]byte{}, a...), b...))
	streamed := Update(Checksum(a), b)
	if whole != streamed {
		t.Fatalf("streamed checksum %#x != whole checksum %#x", streamed, whole)
	}
}
