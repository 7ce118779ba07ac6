package task

import "crypto/rand"

// IDAlphabet is the 32-symbol set used for task ids: digits 2-9 and the
// uppercase letters minus I and O, so ids stay unambiguous when written
// down or read aloud.
const IDAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// IDLength is the fixed length of every task id.
const IDLength = 4

// NewID returns a random 4-character id over IDAlphabet. It is stateless
// and does not check for collisions; callers that persist tasks must retry
// on collision.
func NewID() string {
	buf := make([]byte, IDLength)
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(buf)
	id := make([]byte, IDLength)
	for i, b := range buf {
		id[i] = IDAlphabet[int(b)%len(IDAlphabet)]
	}
	return string(id)
}
