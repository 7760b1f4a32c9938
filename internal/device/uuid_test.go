package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "16-bit UUID", input: "2902", expected: "2902"},
		{name: "16-bit UUID with 0X prefix uppercase", input: "0X2902", expected: "2902"},
		{name: "Full Bluetooth SIG UUID with odd dashes", input: "0000-2902-0000-1000-8000-00805f9b34fb", expected: "2902"},
		{name: "Full Bluetooth SIG UUID uppercase", input: "00002902-0000-1000-8000-00805F9B34FB", expected: "2902"},
		{name: "Custom UUID - wrong prefix", input: "AA002902-0000-1000-8000-00805f9b34fb", expected: "aa00290200001000800000805f9b34fb"},
		{name: "Custom UUID - Nordic UART", input: "6e400002-b5a3-f393-e0a9-e50e24dcca9e", expected: "6e400002b5a3f393e0a9e50e24dcca9e"},
		{name: "Empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input))
		})
	}
}

func TestValidateUUID(t *testing.T) {
	n, err := ValidateUUID("6E400002-B5A3-F393-E0A9-E50E24DCCA9E")
	require.NoError(t, err)
	assert.Equal(t, "6e400002b5a3f393e0a9e50e24dcca9e", n)

	n, err = ValidateUUID("0x2A19")
	require.NoError(t, err)
	assert.Equal(t, "2a19", n)

	for _, bad := range []string{"", "123", "6e400002-b5a3-f393-e0a9", "zzzz"} {
		_, err := ValidateUUID(bad)
		assert.Error(t, err, "MUST reject %q", bad)
	}
}

func TestShortenUUID(t *testing.T) {
	assert.Equal(t, "6e400002", ShortenUUID("6e400002b5a3f393e0a9e50e24dcca9e"))
	assert.Equal(t, "2a19", ShortenUUID("2a19"))
}

func TestSameUUID(t *testing.T) {
	assert.True(t, SameUUID("6e400002-b5a3-f393-e0a9-e50e24dcca9e", "6E400002B5A3F393E0A9E50E24DCCA9E"))
	assert.False(t, SameUUID("2a19", "2a1a"))
}
