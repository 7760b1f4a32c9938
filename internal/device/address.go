package device

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
)

const addressMask = 1<<48 - 1

// Address is a 48-bit Bluetooth device address kept in the low bits of a uint64
type Address uint64

// String formats the address as upper-case hex without separators or leading zeros
func (a Address) String() string {
	return strings.ToUpper(strconv.FormatUint(uint64(a)&addressMask, 16))
}

// MAC formats the address as a colon separated MAC, most significant byte first
func (a Address) MAC() string {
	v := uint64(a) & addressMask
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		byte(v>>40), byte(v>>32), byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// MarshalText implements encoding.TextMarshaler so JSON output matches the display form
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// ParseMAC parses "11:22:33:44:55:66" (or '-' separated) into an Address
func ParseMAC(s string) (Address, error) {
	parts := strings.FieldsFunc(strings.TrimSpace(s), func(r rune) bool { return r == ':' || r == '-' })
	if len(parts) != 6 {
		return 0, fmt.Errorf("invalid MAC address %q", s)
	}

	var v uint64
	for _, p := range parts {
		if len(p) == 0 || len(p) > 2 {
			return 0, fmt.Errorf("invalid MAC address %q", s)
		}
		b, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return 0, fmt.Errorf("invalid MAC address %q: %w", s, err)
		}
		v = v<<8 | b
	}
	return Address(v), nil
}

// ParseAddress accepts either a MAC or the bare hex form printed by Address.String
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if strings.ContainsAny(s, ":-") {
		return ParseMAC(s)
	}

	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	if s == "" || len(s) > 12 {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return Address(v), nil
}

// DeriveAddress maps a platform identifier to an Address.
// MACs convert directly; anything else (CoreBluetooth peripheral UUIDs) is hashed
// with FNV-1a and folded to 48 bits so it stays stable for the process lifetime.
func DeriveAddress(platformID string) Address {
	if a, err := ParseMAC(platformID); err == nil {
		return a
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.ToLower(platformID)))
	sum := h.Sum64()
	return Address((sum ^ sum>>48) & addressMask)
}
