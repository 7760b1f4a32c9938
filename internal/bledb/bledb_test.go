package bledb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "16-bit short form", input: "180d", expected: "180d"},
		{name: "16-bit with 0x prefix", input: "0x180D", expected: "180d"},
		{name: "SIG base with dashes", input: "0000180d-0000-1000-8000-00805f9b34fb", expected: "180d"},
		{name: "SIG base without dashes", input: "0000180d00001000800000805f9b34fb", expected: "180d"},
		{name: "vendor 128-bit", input: "6E400002-B5A3-F393-E0A9-E50E24DCCA9E", expected: "6e400002b5a3f393e0a9e50e24dcca9e"},
		{name: "braces", input: "{0000180f-0000-1000-8000-00805f9b34fb}", expected: "180f"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input))
		})
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("6e400002-b5a3-f393-e0a9-e50e24dcca9e", "6E400002B5A3F393E0A9E50E24DCCA9E"))
	assert.True(t, Equal("2a19", "00002a19-0000-1000-8000-00805f9b34fb"))
	assert.False(t, Equal("6e400002-b5a3-f393-e0a9-e50e24dcca9e", "6e400003-b5a3-f393-e0a9-e50e24dcca9e"))
}

func TestLookups(t *testing.T) {
	assert.Equal(t, "Nordic UART Service", LookupService("6e400001-b5a3-f393-e0a9-e50e24dcca9e"))
	assert.Equal(t, "Battery Service", LookupService("0000180f-0000-1000-8000-00805f9b34fb"))
	assert.Equal(t, "", LookupService("ffff"))

	assert.Equal(t, "Nordic UART RX", LookupCharacteristic("6e400002-b5a3-f393-e0a9-e50e24dcca9e"))
	assert.Equal(t, "Battery Level", LookupCharacteristic("2A19"))

	assert.Equal(t, "Client Characteristic Configuration", LookupDescriptor("00002902-0000-1000-8000-00805f9b34fb"))
}
