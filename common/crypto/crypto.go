package crypto

// nolint:gosec // md5 required by the LBank signature dialect
import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"hash"
	"io"
	"strings"
)

// Hash type selectors for GetHMAC
const (
	HashSHA256 = iota
	HashSHA512
	HashMD5
)

const alphaNumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// HexEncodeToString takes in a hexadecimal byte array and returns a string
func HexEncodeToString(input []byte) string {
	return hex.EncodeToString(input)
}

// Base64Decode takes in a Base64 string and returns a byte array and an error
func Base64Decode(input string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(input)
}

// Base64Encode takes in a byte array then returns an encoded base64 string
func Base64Encode(input []byte) string {
	return base64.StdEncoding.EncodeToString(input)
}

// GetMD5 returns a MD5 hash of a byte array
func GetMD5(input []byte) []byte {
	m := md5.New() // nolint:gosec // required by the LBank dialect
	m.Write(input)
	return m.Sum(nil)
}

// MD5UpperHex returns the uppercase hexadecimal MD5 digest of input
func MD5UpperHex(input []byte) string {
	return strings.ToUpper(hex.EncodeToString(GetMD5(input)))
}

// GetSHA512 returns a SHA512 hash of a byte array
func GetSHA512(input []byte) []byte {
	sha := sha512.New()
	sha.Write(input)
	return sha.Sum(nil)
}

// GetSHA256 returns a SHA256 hash of a byte array
func GetSHA256(input []byte) []byte {
	sha := sha256.New()
	sha.Write(input)
	return sha.Sum(nil)
}

// GetHMAC returns a keyed-hash message authentication code using the desired
// hashtype
func GetHMAC(hashType int, input, key []byte) []byte {
	var hasher func() hash.Hash

	switch hashType {
	case HashSHA256:
		hasher = sha256.New
	case HashSHA512:
		hasher = sha512.New
	case HashMD5:
		hasher = md5.New
	}

	h := hmac.New(hasher, key)
	h.Write(input)
	return h.Sum(nil)
}

// HMACSHA256Hex returns the lowercase hex HMAC-SHA256 of payload under secret
func HMACSHA256Hex(payload, secret string) string {
	return hex.EncodeToString(GetHMAC(HashSHA256, []byte(payload), []byte(secret)))
}

// HMACSHA256Base64 returns the standard base64 HMAC-SHA256 of payload under
// secret
func HMACSHA256Base64(payload, secret string) string {
	return base64.StdEncoding.EncodeToString(GetHMAC(HashSHA256, []byte(payload), []byte(secret)))
}

// HMACSHA512Hex returns the lowercase hex HMAC-SHA512 of payload under secret
func HMACSHA512Hex(payload, secret string) string {
	return hex.EncodeToString(GetHMAC(HashSHA512, []byte(payload), []byte(secret)))
}

// SHA256Hex returns the lowercase hex SHA-256 digest of payload
func SHA256Hex(payload string) string {
	return hex.EncodeToString(GetSHA256([]byte(payload)))
}

// SHA512Hex returns the lowercase hex SHA-512 digest of payload
func SHA512Hex(payload string) string {
	return hex.EncodeToString(GetSHA512([]byte(payload)))
}

// RandomHex returns n cryptographically strong random bytes hex-encoded,
// yielding a string of length 2n
func RandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// RandomAlphaNumeric returns a string of n cryptographically strong random
// characters drawn from [a-zA-Z0-9]
func RandomAlphaNumeric(n int) (string, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i := range b {
		out[i] = alphaNumeric[int(b[i])%len(alphaNumeric)]
	}
	return string(out), nil
}
