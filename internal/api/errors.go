package api

import (
	"encoding/json"
	"strings"
)

// Localized messages shown to shoppers
const (
	FallbackMessage           = "حدث خطأ غير متوقع، يرجى المحاولة مرة أخرى"
	InvalidCredentialsMessage = "البريد الإلكتروني أو كلمة المرور غير صحيحة"
)

// upstream messages with a fixed localized replacement
var translations = map[string]string{
	"An unexpected error occurred": FallbackMessage,
	"Invalid email or password":    InvalidCredentialsMessage,
}

// Error is the normalized failure of a remote API call. Message is always
// safe to show to the shopper.
type Error struct {
	Status  int // 0 when no response was received
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// normalizeMessage picks the server message, translating the known ones
func normalizeMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return FallbackMessage
	}

	msg := strings.TrimSpace(eb.Message)
	if msg == "" {
		msg = strings.TrimSpace(eb.Error)
	}
	if msg == "" {
		return FallbackMessage
	}

	if translated, ok := translations[msg]; ok {
		return translated
	}
	return msg
}
