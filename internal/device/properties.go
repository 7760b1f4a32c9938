package device

import (
	"fmt"
	"strings"
)

// Properties is the GATT characteristic properties bit field
type Properties uint8

const (
	PropBroadcast Properties = 1 << iota
	PropRead
	PropWriteWithoutResponse
	PropWrite
	PropNotify
	PropIndicate
	PropSignedWrite
	PropExtended
)

var propertyNames = []struct {
	prop Properties
	name string
}{
	{PropBroadcast, "broadcast"},
	{PropRead, "read"},
	{PropWriteWithoutResponse, "write-without-response"},
	{PropWrite, "write"},
	{PropNotify, "notify"},
	{PropIndicate, "indicate"},
	{PropSignedWrite, "signed-write"},
	{PropExtended, "extended"},
}

// Has reports whether every bit of q is set in p
func (p Properties) Has(q Properties) bool {
	return p&q == q
}

// CanWrite reports whether either write form is supported
func (p Properties) CanWrite() bool {
	return p&(PropWrite|PropWriteWithoutResponse) != 0
}

// String returns a comma separated list such as "read,write"
func (p Properties) String() string {
	var names []string
	for _, pn := range propertyNames {
		if p.Has(pn.prop) {
			names = append(names, pn.name)
		}
	}
	return strings.Join(names, ",")
}

// ParseProperties parses the String form. "writenr" and "write_without_response" are accepted aliases.
func ParseProperties(s string) (Properties, error) {
	var p Properties
	for _, raw := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(raw))
		name = strings.ReplaceAll(name, "_", "-")
		if name == "" {
			continue
		}
		if name == "writenr" {
			name = "write-without-response"
		}

		found := false
		for _, pn := range propertyNames {
			if pn.name == name {
				p |= pn.prop
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown characteristic property %q", raw)
		}
	}
	return p, nil
}

// WriteMode selects acknowledged or unacknowledged characteristic writes
type WriteMode int

const (
	WriteWithoutResponse WriteMode = iota
	WriteWithResponse
)

func (m WriteMode) String() string {
	switch m {
	case WriteWithResponse:
		return "with-response"
	case WriteWithoutResponse:
		return "without-response"
	default:
		return fmt.Sprintf("WriteMode(%d)", int(m))
	}
}

// WithResponse reports whether the mode waits for an ATT write response
func (m WriteMode) WithResponse() bool {
	return m == WriteWithResponse
}
