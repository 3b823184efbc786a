package domain

import (
	"fmt"
	"strings"
)

// Role is fixed for a connection at handshake time.
type Role string

const (
	RoleProducer Role = "producer"
	RoleViewer   Role = "viewer"
)

// ParseRole accepts "producer" or "viewer" (case-insensitive).
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleProducer:
		return RoleProducer, nil
	case RoleViewer:
		return RoleViewer, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

func (r Role) String() string { return string(r) }
