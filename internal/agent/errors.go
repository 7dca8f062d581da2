package agent

import (
	"errors"
	"strings"

	"github.com/chatforge/chatforge/internal/store"
)

// ErrorClass buckets a provider or storage failure for auditing and for
// picking the user-facing explanation.
type ErrorClass string

const (
	ErrClassAuth        ErrorClass = "auth"
	ErrClassQuota       ErrorClass = "quota"
	ErrClassNetwork     ErrorClass = "network"
	ErrClassMalformed   ErrorClass = "malformed"
	ErrClassPersistence ErrorClass = "persistence"
	ErrClassUnknown     ErrorClass = "unknown"
)

// classifyError maps an error onto its class by inspecting wrapped
// sentinels first and message text second. Matching on text is crude
// but the provider SDK does not expose typed errors for every case.
func classifyError(err error) ErrorClass {
	if err == nil {
		return ErrClassUnknown
	}
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInsufficientCredits) {
		return ErrClassPersistence
	}
	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "401", "unauthorized", "invalid api key", "incorrect api key", "authentication"):
		return ErrClassAuth
	case containsAny(msg, "429", "quota", "rate limit", "billing", "insufficient_quota"):
		return ErrClassQuota
	case containsAny(msg, "connection refused", "timeout", "deadline exceeded", "no such host", "connection reset", "network", "eof"):
		return ErrClassNetwork
	case containsAny(msg, "unmarshal", "invalid json", "schema", "unexpected end of json", "parse"):
		return ErrClassMalformed
	case containsAny(msg, "badger", "redis", "dgraph", "sqlite"):
		return ErrClassPersistence
	default:
		return ErrClassUnknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// userSafeMessage renders an error as a short apologetic explanation
// that names what the user can do next. Raw provider errors never
// reach the user.
func userSafeMessage(err error) string {
	switch classifyError(err) {
	case ErrClassAuth:
		return "I couldn't authenticate with the AI provider. Please check that your API key in settings is valid and try again."
	case ErrClassQuota:
		return "The AI provider reported a usage limit on your key. Please check your plan, or wait a moment and try again."
	case ErrClassNetwork:
		return "I couldn't reach the AI provider just now. Please check your connection and try again."
	case ErrClassMalformed:
		return "The AI returned a response I couldn't read. Please try again with the same message."
	case ErrClassPersistence:
		return "Something went wrong saving your data. Please try again; if it keeps happening, contact support."
	default:
		return "Something unexpected went wrong while handling your message. Please try again."
	}
}
