// Package role resolves a user's privilege level and decides whether a caller
// may perform a role-gated action.
package role

import (
	"fmt"
	"strings"
)

// Level is a totally ordered privilege level. Higher levels include lower ones.
type Level int

const (
	LevelUser   Level = 1
	LevelIssuer Level = 2
	LevelAdmin  Level = 3
)

// Valid reports whether l is one of the defined levels.
func (l Level) Valid() bool {
	return l >= LevelUser && l <= LevelAdmin
}

func (l Level) String() string {
	switch l {
	case LevelUser:
		return "user"
	case LevelIssuer:
		return "issuer"
	case LevelAdmin:
		return "admin"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel parses a level name ("user", "issuer", "admin"), case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return LevelUser, nil
	case "issuer":
		return LevelIssuer, nil
	case "admin":
		return LevelAdmin, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

// MarshalText encodes the level by name.
func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid role level %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText decodes a level name.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
