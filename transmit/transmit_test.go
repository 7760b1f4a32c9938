package transmit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/srg/bletx/gatt"
	"github.com/srg/bletx/internal/device"
	"github.com/srg/bletx/internal/testutils"
	"github.com/srg/bletx/transmit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

const addr = "11:22:33:44:55:66"

type TransmitterTestSuite struct {
	suite.Suite
	helper     *testutils.TestHelper
	peripheral *testutils.FakePeripheral
	resolver   *gatt.Resolver
	tx         *transmit.Transmitter
}

func (s *TransmitterTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.peripheral = testutils.NewPeripheralFromJSON(testutils.UARTPeripheralJSON, addr)
	radio := testutils.NewFakeRadio().WithPeripheral(s.peripheral)
	s.resolver = gatt.NewResolver(radio, nil, s.helper.Logger)
	s.tx = transmit.New(&transmit.Options{WriteTimeout: time.Second}, s.helper.Logger)
}

func (s *TransmitterTestSuite) connect() *gatt.WritableCharacteristic {
	a, err := device.ParseAddress(addr)
	s.Require().NoError(err)
	wc, err := s.resolver.Connect(context.Background(), a)
	s.Require().NoError(err)
	return wc
}

func (s *TransmitterTestSuite) TestSendWritesTrimmedPayload() {
	wc := s.connect()

	r, err := s.tx.Send(wc, "  line1\r\nline2 \n")
	s.Require().NoError(err)
	s.Equal([]byte("line1\r\nline2"), r.Payload, "payload MUST be the trimmed text verbatim")
	s.Equal("line1 line2", r.Display)
	s.Equal(device.WriteWithoutResponse, r.Mode)

	writes := s.peripheral.Writes()
	s.Require().Len(writes, 1)
	s.Equal([]byte("line1\r\nline2"), writes[0].Data)
	s.False(writes[0].WithResponse)
}

func (s *TransmitterTestSuite) TestUTF8PayloadIsNotFramed() {
	wc := s.connect()

	r, err := s.tx.Send(wc, "héllo ✓")
	s.Require().NoError(err)
	s.Equal([]byte("héllo ✓"), s.peripheral.Writes()[0].Data)
	s.Equal("héllo ✓", r.Display)
}

func (s *TransmitterTestSuite) TestEmptyPayloadIsNotWritten() {
	wc := s.connect()

	for _, text := range []string{"", "   ", "\r\n\t"} {
		_, err := s.tx.Send(wc, text)
		s.ErrorIs(err, device.ErrEmptyPayload)
	}
	s.Empty(s.peripheral.Writes())
}

func (s *TransmitterTestSuite) TestNotConnected() {
	_, err := s.tx.Send(nil, "hello")
	s.ErrorIs(err, device.ErrNotConnected)

	wc := s.connect()
	s.Require().NoError(s.resolver.Disconnect())
	_, err = s.tx.Send(wc, "hello")
	s.ErrorIs(err, device.ErrNotConnected, "revoked characteristic MUST NOT be written")
	s.Empty(s.peripheral.Writes())
}

func (s *TransmitterTestSuite) TestWriteFailure() {
	wc := s.connect()
	s.peripheral.Characteristic(testutils.UARTService, testutils.UARTTX).FailWrites(errors.New("att: insufficient resources"))

	_, err := s.tx.Send(wc, "hello")
	s.ErrorIs(err, device.ErrWriteFailed)
	s.ErrorContains(err, "insufficient resources")
}

func (s *TransmitterTestSuite) TestWithResponsePolicy() {
	radio := testutils.NewFakeRadio().WithPeripheral(s.peripheral)
	s.resolver = gatt.NewResolver(radio, &gatt.Options{Policy: gatt.PreferWithResponse}, s.helper.Logger)
	wc := s.connect()

	r, err := s.tx.Send(wc, "ack me")
	s.Require().NoError(err)
	s.Equal(device.WriteWithResponse, r.Mode)
	s.True(s.peripheral.Writes()[0].WithResponse)
}

func TestTransmitterTestSuite(t *testing.T) {
	suite.Run(t, new(TransmitterTestSuite))
}

func TestDisplayText(t *testing.T) {
	assert.Equal(t, "a b", transmit.DisplayText("a\nb"))
	assert.Equal(t, "ab", transmit.DisplayText("a\rb"))
	assert.Equal(t, "a b c", transmit.DisplayText("a\r\nb\nc"))
	assert.Equal(t, "plain", transmit.DisplayText("plain"))
}
