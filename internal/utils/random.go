package utils

import (
	"crypto/rand"
	"math/big"
)

const (
	referralAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	digits           = "0123456789"
)

func randomFrom(alphabet string, length int) (string, error) {
	out := make([]byte, length)
	max := big.NewInt(int64(len(alphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}

// RandomReferralCode returns a 5-character lowercase alphanumeric code.
// Uniqueness is the caller's concern.
func RandomReferralCode() (string, error) {
	return randomFrom(referralAlphabet, 5)
}

// RandomPhoneCode returns a 4-digit activation code.
func RandomPhoneCode() (string, error) {
	return randomFrom(digits, 4)
}

// RandomOrderID returns a public order identifier: the "10" prefix followed
// by nine random digits.
func RandomOrderID() (string, error) {
	suffix, err := randomFrom(digits, 9)
	if err != nil {
		return "", err
	}
	return "10" + suffix, nil
}
