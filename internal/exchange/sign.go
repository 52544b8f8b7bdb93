package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
)

func sign(h func() hash.Hash, secret, message string) string {
	mac := hmac.New(h, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// signSHA256 is the canonical-string scheme: hex HMAC-SHA256.
func signSHA256(secret, message string) string {
	return sign(sha256.New, secret, message)
}

// signSHA384 is the payload scheme: hex HMAC-SHA384.
func signSHA384(secret, message string) string {
	return sign(sha512.New384, secret, message)
}
