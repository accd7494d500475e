package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/book-expert/voice-engine/internal/core"
)

// Fingerprint derives the cache key of a request from exactly its text,
// backend, voice id, and language. Prosody (speed, pitch, volume) is not
// part of the key, so requests differing only in prosody share an entry.
//
// Each field is length-prefixed before hashing so that no two distinct
// tuples produce the same byte stream.
func Fingerprint(text string, name core.Backend, voiceID, language string) string {
	hash := sha256.New()

	for _, field := range []string{text, string(name), voiceID, language} {
		var prefix [8]byte

		binary.BigEndian.PutUint64(prefix[:], uint64(len(field)))
		hash.Write(prefix[:])
		hash.Write([]byte(field))
	}

	return hex.EncodeToString(hash.Sum(nil))
}

// FingerprintFor is Fingerprint applied to a voice configuration.
func FingerprintFor(text string, voice core.VoiceConfig) string {
	return Fingerprint(text, voice.Backend, voice.VoiceID, voice.Language)
}
