package protocol

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	mrand "math/rand"
)

// NoPairingCode is never broadcast; it stands for "no session".
const NoPairingCode uint32 = 0

// GeneratePairingCode draws a pairing code from crypto/rand, falling back to
// math/rand when the system source fails.
func GeneratePairingCode() uint32 {
	return pairingCodeFrom(rand.Reader)
}

func pairingCodeFrom(r io.Reader) uint32 {
	var b [4]byte
	for i := 0; i < 4; i++ {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			break
		}
		if code := binary.LittleEndian.Uint32(b[:]); code != NoPairingCode {
			return code
		}
	}
	for {
		if code := mrand.Uint32(); code != NoPairingCode {
			return code
		}
	}
}
