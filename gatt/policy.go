package gatt

import (
	"fmt"
	"strings"

	"github.com/srg/bletx/internal/device"
)

// WritePolicy decides which write form is used for a resolved characteristic
type WritePolicy string

const (
	// PreferWithoutResponse uses write-without-response when the characteristic supports it
	PreferWithoutResponse WritePolicy = "prefer-without-response"
	// PreferWithResponse uses acknowledged writes when the characteristic supports them
	PreferWithResponse WritePolicy = "prefer-with-response"
	// AlwaysWithoutResponse never waits for an ATT response
	AlwaysWithoutResponse WritePolicy = "always-without-response"
)

// WritePolicies lists every accepted policy
var WritePolicies = []WritePolicy{PreferWithoutResponse, PreferWithResponse, AlwaysWithoutResponse}

// ParseWritePolicy parses a policy name; "" selects PreferWithoutResponse
func ParseWritePolicy(s string) (WritePolicy, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return PreferWithoutResponse, nil
	}
	for _, p := range WritePolicies {
		if string(p) == name {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown write policy %q", s)
}

// Select picks the write mode for a characteristic with the given properties
func (p WritePolicy) Select(props device.Properties) device.WriteMode {
	switch p {
	case AlwaysWithoutResponse:
		return device.WriteWithoutResponse
	case PreferWithResponse:
		if props.Has(device.PropWrite) || !props.Has(device.PropWriteWithoutResponse) {
			return device.WriteWithResponse
		}
		return device.WriteWithoutResponse
	default:
		if props.Has(device.PropWriteWithoutResponse) || !props.Has(device.PropWrite) {
			return device.WriteWithoutResponse
		}
		return device.WriteWithResponse
	}
}
