package cryptoutil

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

func RandomBytes(n int) []byte {
	b := make([]byte, n)
	nn, err := rand.Read(b)
	if err != nil {
		panic(fmt.Errorf("get random bytes: %v", err))
	}
	if nn != n {
		panic(fmt.Errorf("short read: %d < %d", nn, n))
	}
	return b
}

// RandomHex returns n random bytes as a lowercase hex string, handy for
// synthetic account addresses in tests.
func RandomHex(n int) string {
	return hex.EncodeToString(RandomBytes(n))
}
