// Package bytesize parses and formats the human-readable byte quantities
// used in configuration values like "512Mi" or "100MB".
package bytesize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ByteSize is a byte count decoded from strings such as "512Mi", "100MB",
// or a bare number of bytes. Binary suffixes (Ki, Mi, Gi, Ti, with an
// optional trailing B) scale by 1024; decimal suffixes (K, M, G, T, KB,
// MB, GB, TB) scale by 1000.
type ByteSize uint64

const (
	B ByteSize = 1

	KB = 1000 * B
	MB = 1000 * KB
	GB = 1000 * MB
	TB = 1000 * GB

	KiB = 1024 * B
	MiB = 1024 * KiB
	GiB = 1024 * MiB
	TiB = 1024 * GiB
)

// ParseByteSize converts a size string into bytes. The numeric part may be
// fractional ("1.5Gi"); units are case-insensitive and surrounding
// whitespace is ignored.
func ParseByteSize(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty byte size")
	}

	// Split at the first rune that cannot belong to the number.
	cut := len(s)
	for i, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			cut = i
			break
		}
	}
	num := s[:cut]

	mult, err := unitMultiplier(strings.TrimSpace(s[cut:]))
	if err != nil {
		return 0, err
	}

	if strings.Contains(num, ".") {
		f, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid byte size %q", s)
		}
		return ByteSize(f * float64(mult)), nil
	}

	n, err := strconv.ParseUint(num, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q", s)
	}
	return ByteSize(n) * mult, nil
}

// unitMultiplier resolves a unit suffix. A trailing "b"/"B" is optional,
// so "Ki" and "KiB" are the same unit.
func unitMultiplier(unit string) (ByteSize, error) {
	switch strings.TrimSuffix(strings.ToLower(unit), "b") {
	case "":
		return B, nil
	case "k":
		return KB, nil
	case "m":
		return MB, nil
	case "g":
		return GB, nil
	case "t":
		return TB, nil
	case "ki":
		return KiB, nil
	case "mi":
		return MiB, nil
	case "gi":
		return GiB, nil
	case "ti":
		return TiB, nil
	}
	return 0, fmt.Errorf("unknown byte size unit %q", unit)
}

// UnmarshalText lets ByteSize fields decode from config strings.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// String renders the size with the largest binary unit it reaches.
func (b ByteSize) String() string {
	for _, u := range []struct {
		div    ByteSize
		suffix string
	}{{TiB, "TiB"}, {GiB, "GiB"}, {MiB, "MiB"}, {KiB, "KiB"}} {
		if b >= u.div {
			return fmt.Sprintf("%.2f%s", float64(b)/float64(u.div), u.suffix)
		}
	}
	return fmt.Sprintf("%dB", uint64(b))
}

// Int64 returns the size as an int64 for APIs that take signed lengths.
func (b ByteSize) Int64() int64 {
	return int64(b)
}
