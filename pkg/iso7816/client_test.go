package iso7816

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gregLibert/secure-element/pkg/tlv"
)

// scriptedCard replays canned responses and records every command it receives.
type scriptedCard struct {
	responses [][]byte
	err       error
	received  [][]byte
}

func (s *scriptedCard) Transmit(cmd []byte) ([]byte, error) {
	s.received = append(s.received, cmd)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		return []byte{0x6F, 0x00}, nil
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func TestClient_GetResponse(t *testing.T) {
	card := &scriptedCard{responses: [][]byte{
		tlv.Hex("61 03"),
		tlv.Hex("AABBCC 9000"),
	}}
	cls, _ := NewClass(0x00)

	resp, err := NewClient(card).Exchange(SelectByAID(cls, []byte{0xA0, 0x00, 0x00, 0x00, 0x01}))
	if err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}

	if diff := cmp.Diff(tlv.Hex("AABBCC"), resp.Data); diff != "" {
		t.Errorf("Data mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(tlv.Hex("00 C0 00 00 03"), card.received[1]); diff != "" {
		t.Errorf("GET RESPONSE mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_WrongLengthRetry(t *testing.T) {
	card := &scriptedCard{responses: [][]byte{
		tlv.Hex("6C 08"),
		tlv.Hex("0102030405060708 9000"),
	}}
	gp, _ := NewClass(0x80)
	cmd := NewGetDataCommand(gp, 0xDF20, 0xF0)

	trace, err := NewClient(card).Send(cmd)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if len(trace) != 2 || !trace.IsSuccess() {
		t.Fatalf("unexpected trace: %d steps, success=%v", len(trace), trace.IsSuccess())
	}
	if cmd.Ne != 0xF0 {
		t.Errorf("original command mutated: Ne=%d", cmd.Ne)
	}
	if diff := cmp.Diff(tlv.Hex("80 CA DF 20 08"), card.received[1]); diff != "" {
		t.Errorf("Retry mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_TransmitError(t *testing.T) {
	cause := errors.New("reader removed")
	card := &scriptedCard{err: cause}
	cls, _ := NewClass(0x00)

	_, err := NewClient(card).Send(SelectByAID(cls, []byte{0xA0, 0x00, 0x00, 0x00, 0x01}))

	var te *TransmitError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransmitError, got %T (%v)", err, err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("cause not preserved: %v", err)
	}
}

func TestClient_MalformedResponse(t *testing.T) {
	card := &scriptedCard{responses: [][]byte{{0x90}}}
	cls, _ := NewClass(0x00)

	_, err := NewClient(card).Send(SelectByAID(cls, []byte{0xA0, 0x00, 0x00, 0x00, 0x01}))
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestClient_GetResponseKeepsChannel(t *testing.T) {
	card := &scriptedCard{responses: [][]byte{
		tlv.Hex("61 00"),
		tlv.Hex("01 9000"),
	}}
	onChannel5, _ := NewClass(0xC1)

	trace, err := NewClient(card).Send(NewGetDataCommand(onChannel5, 0xFF40, 0))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if trace.Status() != SW_NO_ERROR {
		t.Errorf("Status() = %04X, want 9000", uint16(trace.Status()))
	}
	// '6100' announces 256 bytes, asked for with Le=00 on the same channel.
	if diff := cmp.Diff(tlv.Hex("C1 C0 00 00 00"), card.received[1]); diff != "" {
		t.Errorf("GET RESPONSE mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_ChainedGetResponse(t *testing.T) {
	card := &scriptedCard{responses: [][]byte{
		tlv.Hex("61 02"),
		tlv.Hex("AABB 61 02"),
		tlv.Hex("CCDD 9000"),
	}}
	gp, _ := NewClass(0x80)

	resp, err := NewClient(card).Exchange(NewGetDataCommand(gp, 0xFF40, 0))
	if err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}

	if diff := cmp.Diff(tlv.Hex("AABBCCDD"), resp.Data); diff != "" {
		t.Errorf("Data mismatch (-want +got):\n%s", diff)
	}
	if resp.Status != SW_NO_ERROR {
		t.Errorf("Status = %04X, want 9000", uint16(resp.Status))
	}
	if len(card.received) != 3 {
		t.Fatalf("sent %d commands, want 3", len(card.received))
	}
	if diff := cmp.Diff(tlv.Hex("80 C0 00 00 02"), card.received[2]); diff != "" {
		t.Errorf("second GET RESPONSE mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_NotTransmittedPassesThrough(t *testing.T) {
	refused := fmt.Errorf("blocked by policy: %w", ErrNotTransmitted)
	card := &scriptedCard{err: refused}
	cls, _ := NewClass(0x00)

	_, err := NewClient(card).Send(SelectByAID(cls, []byte{0xA0, 0x00, 0x00, 0x00, 0x01}))
	if err != refused {
		t.Fatalf("expected the refusal as is, got %v", err)
	}

	var te *TransmitError
	if errors.As(err, &te) {
		t.Error("refusal must not be reported as a transport failure")
	}
}
