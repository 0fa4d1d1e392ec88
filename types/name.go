package types

import "fmt"

// NameRecord binds a human-readable name to an address inside the weave
// name index. Names are 3-32 bytes, lowercase ascii letters/digits/hyphen,
// and may not start or end with a hyphen.
type NameRecord struct {
	Name    string
	Owner   Address
	SetAt   Timestamp
}

const (
	MinNameLength = 3
	MaxNameLength = 32
)

// ValidateName enforces the name-grammar invariant shared by name
// registration and resolution.
func ValidateName(name string) error {
	n := len(name)
	if n < MinNameLength || n > MaxNameLength {
		return fmt.Errorf("%w: name length %d outside [%d,%d]", ErrCodec, n, MinNameLength, MaxNameLength)
	}
	if name[0] == '-' || name[n-1] == '-' {
		return fmt.Errorf("%w: name %q cannot start or end with a hyphen", ErrCodec, name)
	}
	for i := 0; i < n; i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-':
		default:
			return fmt.Errorf("%w: name %q contains invalid character %q", ErrCodec, name, c)
		}
	}
	return nil
}
