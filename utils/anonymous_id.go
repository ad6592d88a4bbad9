package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"time"
)

const (
	anonymousIDPrefix = "anon_"
	anonymousSuffix   = 7
	anonymousAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

var anonymousIDPattern = regexp.MustCompile(`^anon_\d+_[a-z0-9]+$`)

// GenerateAnonymousID returns a new visitor identifier of the form anon_<epoch-millis>_<random>.
//
// The identifier is a bearer token with no server-side secret: anyone who knows
// it can read and write the visitor's conversations.
func GenerateAnonymousID() string {
	return fmt.Sprintf("%s%d_%s", anonymousIDPrefix, time.Now().UnixMilli(), randomAlnum(anonymousSuffix))
}

// ValidateAnonymousID checks the shape of an anonymous identifier. It is a
// format check only; any string of the right shape is accepted.
func ValidateAnonymousID(id string) bool {
	return anonymousIDPattern.MatchString(id)
}

// RandomAlnum returns n random characters from [a-z0-9]
func RandomAlnum(n int) string {
	return randomAlnum(n)
}

func randomAlnum(n int) string {
	max := big.NewInt(int64(len(anonymousAlphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken
			panic(fmt.Sprintf("utils: reading random bytes: %v", err))
		}
		buf[i] = anonymousAlphabet[idx.Int64()]
	}
	return string(buf)
}
