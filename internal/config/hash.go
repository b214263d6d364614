package config

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// HashHeader — заголовок с HMAC-SHA256 подписью тела запроса или ответа.
const HashHeader = "HashSHA256"

// ComputeHash возвращает HMAC-SHA256 от data в hex-представлении.
func ComputeHash(data []byte, key string) string {
	h := hmac.New(sha256.New, []byte(key))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyHash проверяет подпись received для data.
//
// При пустом key подпись не требуется.
func VerifyHash(data []byte, key, received string) bool {
	if key == "" {
		return true
	}
	if received == "" {
		return false
	}
	return hmac.Equal([]byte(received), []byte(ComputeHash(data, key)))
}
