package federation

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// MaxSessionNameLength is the provider's RoleSessionName limit.
	MaxSessionNameLength = 64

	sessionNameSeparator = "."
	// sessionHashMarker precedes the hash suffix. A plain name never contains it.
	sessionHashMarker = "="
	sessionHashLength = 12
)

// SessionName composes a role session name from the tenant, participant and
// session ids. A name that fits, uses only allowed characters and has neither
// the separator nor the hash marker inside a component is used as is. Anything
// else is truncated and suffixed with "=" and a hash of the full tuple, so two
// different tuples do not collapse onto the same name.
func SessionName(tenantID, participantID, sessionID string) string {
	parts := []string{tenantID, participantID, sessionID}

	ambiguous := false
	cleaned := make([]string, len(parts))
	for i, p := range parts {
		cleaned[i] = sanitizeSessionPart(p)
		if cleaned[i] != p || strings.Contains(p, sessionNameSeparator) ||
			strings.Contains(p, sessionHashMarker) || p == "" {
			ambiguous = true
		}
	}

	plain := strings.Join(cleaned, sessionNameSeparator)
	if !ambiguous && len(plain) <= MaxSessionNameLength {
		return plain
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	suffix := sessionHashMarker + hex.EncodeToString(sum[:])[:sessionHashLength]

	keep := MaxSessionNameLength - len(suffix)
	if len(plain) > keep {
		plain = plain[:keep]
	}
	return plain + suffix
}

// sanitizeSessionPart maps every byte outside [A-Za-z0-9_+=,.@-] to '-'.
func sanitizeSessionPart(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case strings.IndexByte("_+=,.@-", c) >= 0:
			b.WriteByte(c)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}
