package kibi

// Human readable byte sizes, and parsing thereof

import (
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidByteSizeString = fmt.Errorf("Invalid byte size string")

var units = []string{"bytes", "KB", "MB", "GB", "TB", "PB"}

// Bytes formats b as a human readable size, eg "35 MB"
func Bytes(b int64) string {
	size := b
	for _, unit := range units[:len(units)-1] {
		if size < 1024 {
			return fmt.Sprintf("%v %v", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%v %v", size, units[len(units)-1])
}

// Parse reads a human byte size, eg "50", "50 KB", "50mb", "1 G".
// Suffixes are case insensitive, and a bare letter means the same as the
// two letter form ('m' == 'mb').
func Parse(v string) (int64, error) {
	v = strings.TrimSpace(strings.ToLower(v))
	digits := v
	if i := strings.IndexFunc(v, func(r rune) bool { return r < '0' || r > '9' }); i != -1 {
		digits = v[:i]
	}
	if digits == "" {
		return 0, ErrInvalidByteSizeString
	}
	value, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, err
	}
	multiplier := int64(1)
	switch strings.TrimSpace(v[len(digits):]) {
	case "", "bytes":
	case "k", "kb":
		multiplier = 1024
	case "m", "mb":
		multiplier = 1024 * 1024
	case "g", "gb":
		multiplier = 1024 * 1024 * 1024
	case "t", "tb":
		multiplier = 1024 * 1024 * 1024 * 1024
	case "p", "pb":
		multiplier = 1024 * 1024 * 1024 * 1024 * 1024
	default:
		return 0, ErrInvalidByteSizeString
	}
	return value * multiplier, nil
}
