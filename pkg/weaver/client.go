package weaver

import (
	"encoding/binary"
	"fmt"

	"github.com/gregLibert/secure-element/pkg/iso7816"
)

// Client drives a Weaver applet over an already selected channel.
type Client struct {
	client *iso7816.Client
	cla    iso7816.Class
}

// NewClient creates a client on top of a transmitter.
func NewClient(t iso7816.Transmitter) *Client {
	cla, _ := iso7816.NewClass(CLA)
	return &Client{client: iso7816.NewClient(t), cla: cla}
}

// NumSlots returns the number of slots offered by the applet.
func (c *Client) NumSlots() (uint32, error) {
	resp, err := c.exchange("GET_NUM_SLOTS", INS_GET_NUM_SLOTS, nil, NUM_SLOTS_BYTES)
	if err != nil {
		return 0, err
	}
	if len(resp.Data) != NUM_SLOTS_BYTES {
		return 0, fmt.Errorf("weaver GET_NUM_SLOTS: %d bytes, want %d", len(resp.Data), NUM_SLOTS_BYTES)
	}
	return binary.BigEndian.Uint32(resp.Data), nil
}

// Write replaces key and value of a slot.
func (c *Client) Write(slot uint32, key, value []byte) error {
	if len(key) != SLOT_KEY_BYTES || len(value) != SLOT_VALUE_BYTES {
		return fmt.Errorf("weaver WRITE: key and value must be %d and %d bytes", SLOT_KEY_BYTES, SLOT_VALUE_BYTES)
	}
	data := make([]byte, 0, writeLength)
	data = binary.BigEndian.AppendUint32(data, slot)
	data = append(data, key...)
	data = append(data, value...)

	_, err := c.exchange("WRITE", INS_WRITE, data, 0)
	return err
}

// Read checks key against a slot. A wrong key is not an error: it is
// reported in ReadResult.Status together with the throttling timeout.
func (c *Client) Read(slot uint32, key []byte) (ReadResult, error) {
	if len(key) != SLOT_KEY_BYTES {
		return ReadResult{}, fmt.Errorf("weaver READ: key must be %d bytes", SLOT_KEY_BYTES)
	}
	data := make([]byte, 0, readLength)
	data = binary.BigEndian.AppendUint32(data, slot)
	data = append(data, key...)

	resp, err := c.exchange("READ", INS_READ, data, 1+SLOT_VALUE_BYTES)
	if err != nil {
		return ReadResult{}, err
	}
	if len(resp.Data) == 0 {
		return ReadResult{}, fmt.Errorf("weaver READ: empty response")
	}

	switch status := resp.Data[0]; status {
	case READ_SUCCESS:
		if len(resp.Data) != 1+SLOT_VALUE_BYTES {
			return ReadResult{}, fmt.Errorf("weaver READ: value of %d bytes, want %d", len(resp.Data)-1, SLOT_VALUE_BYTES)
		}
		return ReadResult{Status: status, Value: resp.Data[1:]}, nil
	case READ_WRONG_KEY, READ_BACK_OFF:
		if len(resp.Data) != 1+TIMEOUT_BYTES {
			return ReadResult{}, fmt.Errorf("weaver READ: timeout of %d bytes, want %d", len(resp.Data)-1, TIMEOUT_BYTES)
		}
		return ReadResult{Status: status, Timeout: binary.BigEndian.Uint32(resp.Data[1:])}, nil
	default:
		return ReadResult{}, fmt.Errorf("weaver READ: unknown status byte %02X", status)
	}
}

// EraseValue zeroes the value of a slot and keeps its key.
func (c *Client) EraseValue(slot uint32) error {
	data := binary.BigEndian.AppendUint32(nil, slot)
	_, err := c.exchange("ERASE_VALUE", INS_ERASE_VALUE, data, 0)
	return err
}

// EraseAll zeroes every slot.
func (c *Client) EraseAll() error {
	_, err := c.exchange("ERASE_ALL", INS_ERASE_ALL, nil, 0)
	return err
}

func (c *Client) exchange(op string, code iso7816.InsCode, data []byte, ne int) (*iso7816.ResponseAPDU, error) {
	trace, err := c.client.Send(iso7816.NewCommandAPDU(c.cla, iso7816.MustInstruction(code), 0x00, 0x00, data, ne))
	if err != nil {
		return nil, fmt.Errorf("weaver %s: %w", op, err)
	}
	log().Debug("weaver command", "op", op, "trace", trace)

	if sw := trace.Status(); sw != iso7816.SW_NO_ERROR {
		return nil, &StatusError{Op: op, Status: sw}
	}
	return trace.Response(), nil
}
