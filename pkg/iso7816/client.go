package iso7816

import (
	"errors"
	"fmt"
)

// CLIENT & PROTOCOL LOGIC:
// The Client acts as a high-level driver over the physical connection.
// It implements the automatic handling of ISO 7816-3 transport behaviors that are
// often exposed to the application layer in T=0 protocols:
//
// 1. "61 XX" (Response Available):
//    The card indicates that XX bytes are waiting. The client automatically generates
//    and sends a GET RESPONSE command to retrieve them.
//
// 2. "6C XX" (Wrong Length):
//    The card indicates that the expected length (Le) was incorrect and suggests XX.
//    The client automatically re-sends the original command with Le = XX.
//
// The Send() method returns a Trace, which is a log of all atomic transactions
// occurred to fulfill the logical request.

// Transmitter abstracts the physical card connection.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// ErrNotTransmitted marks errors a Transmitter raises before anything reaches
// the card, such as a policy refusal. Send returns errors wrapping it as is
// instead of reporting a TransmitError.
var ErrNotTransmitted = errors.New("not transmitted")

// TransmitError reports a failure of the underlying transport.
// Callers must not treat it as a card answer: no status word was received.
type TransmitError struct {
	Err error
}

func (e *TransmitError) Error() string {
	return fmt.Sprintf("transmission error: %v", e.Err)
}

func (e *TransmitError) Unwrap() error {
	return e.Err
}

// Client manages the high-level communication with the card.
type Client struct {
	Card Transmitter
}

// NewClient creates a new Client instance.
func NewClient(card Transmitter) *Client {
	return &Client{Card: card}
}

// Exchange sends a command and returns its response, with the data of
// chained GET RESPONSE steps joined (see Trace.Response).
func (c *Client) Exchange(cmd *CommandAPDU) (*ResponseAPDU, error) {
	trace, err := c.Send(cmd)
	if err != nil {
		return nil, err
	}
	return trace.Response(), nil
}

// Send transmits a command and handles protocol logic (61xx, 6Cxx).
func (c *Client) Send(cmd *CommandAPDU) (Trace, error) {
	rawCmd, err := cmd.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encoding error: %w", err)
	}

	rawResp, err := c.Card.Transmit(rawCmd)
	if err != nil {
		if errors.Is(err, ErrNotTransmitted) {
			return nil, err
		}
		return nil, &TransmitError{Err: err}
	}

	resp, err := ParseResponseAPDU(rawResp)
	if err != nil {
		return nil, err
	}

	currentTx := Transaction{
		Command:  cmd,
		Response: resp,
	}

	trace := Trace{currentTx}

	// Case 61XX: More data available -> Issue GET RESPONSE
	if available, ok := resp.Status.ResponseAvailable(); ok {
		// ISO 7816-4: GET RESPONSE must use the same logical channel as the original command.
		respCls := cmd.Class
		respCls.IsChained = false

		getRespCmd := NewCommandAPDU(respCls, MustInstruction(INS_GET_RESPONSE), 0x00, 0x00, nil, available)

		subTrace, err := c.Send(getRespCmd)
		if err != nil {
			return trace, err
		}

		trace = append(trace, subTrace...)
		return trace, nil
	}

	// Case 6CXX: Wrong Length -> Re-issue original command with correct Le
	if le, ok := resp.Status.CorrectLength(); ok {
		// Clone command to update Le without mutating the original pointer
		subTrace, err := c.Send(cmd.WithNe(le))
		if err != nil {
			return trace, err
		}

		trace = append(trace, subTrace...)
		return trace, nil
	}

	return trace, nil
}
