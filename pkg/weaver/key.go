package weaver

import (
	"crypto/sha256"
	"encoding/binary"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"
)

const (
	passphraseSalt       = "Weaver Slot Key"
	passphraseIterations = 50000
)

// KeyFromPassphrase derives a SLOT_KEY_BYTES key from a passphrase with
// PBKDF2-SHA256. The passphrase is NFKD-normalized first, and the slot id is
// appended to the salt so a passphrase yields a distinct key per slot.
func KeyFromPassphrase(passphrase string, slot uint32) []byte {
	salt := binary.BigEndian.AppendUint32([]byte(passphraseSalt), slot)
	return pbkdf2.Key(norm.NFKD.Bytes([]byte(passphrase)), salt, passphraseIterations, SLOT_KEY_BYTES, sha256.New)
}
