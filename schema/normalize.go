package schema

import "strings"

// ValidateSessionID ensures a session id is non-empty printable text with
// no surrounding whitespace.
func ValidateSessionID(sessionID SessionID) error {
	raw := string(sessionID)
	if raw == "" {
		return ErrInvalidSession
	}
	if strings.TrimSpace(raw) != raw {
		return ErrInvalidSession
	}
	for _, r := range raw {
		if r < 0x21 || r > 0x7E {
			return ErrInvalidSession
		}
	}
	return nil
}

// ValidateUserID ensures a user id matches [a-z0-9._-] with no normalization.
func ValidateUserID(userID UserID) error {
	raw := string(userID)
	if raw == "" {
		return ErrInvalidUser
	}
	if strings.TrimSpace(raw) != raw {
		return ErrInvalidUser
	}
	for _, r := range raw {
		if r >= 'a' && r <= 'z' {
			continue
		}
		if r >= '0' && r <= '9' {
			continue
		}
		if r == '.' || r == '_' || r == '-' {
			continue
		}
		return ErrInvalidUser
	}
	return nil
}
