package weaver

import (
	"encoding/binary"

	"github.com/gregLibert/secure-element/pkg/iso7816"
)

// Applet is the card side of the protocol. It answers raw C-APDUs and can
// stand in for a card wherever an iso7816.Transmitter is expected.
type Applet struct {
	slots Slots
}

// NewApplet creates an applet serving slots.
func NewApplet(slots Slots) *Applet {
	return &Applet{slots: slots}
}

// Transmit processes one command. It never returns an error; rejections are
// reported through the status word.
func (a *Applet) Transmit(raw []byte) ([]byte, error) {
	return a.process(raw).Bytes(), nil
}

// process checks, in order, CLA, INS, P1/P2, length and slot id. Slots are
// only touched once every check passed.
func (a *Applet) process(raw []byte) *iso7816.ResponseAPDU {
	if len(raw) < 4 {
		return statusOnly(iso7816.SW_ERR_WRONG_LENGTH)
	}
	if !isWeaverClass(raw[0]) {
		return statusOnly(iso7816.SW_ERR_CLA_NOT_SUPPORTED)
	}

	ins := iso7816.InsCode(raw[1])
	switch ins {
	case INS_GET_NUM_SLOTS, INS_WRITE, INS_READ, INS_ERASE_VALUE, INS_ERASE_ALL:
	default:
		return statusOnly(iso7816.SW_ERR_INS_INVALID)
	}

	if raw[2] != 0 || raw[3] != 0 {
		return statusOnly(iso7816.SW_ERR_WRONG_P1P2)
	}

	cmd, err := iso7816.ParseCommandAPDU(raw)
	if err != nil {
		log().Debug("rejecting malformed command", "error", err)
		return statusOnly(iso7816.SW_ERR_WRONG_LENGTH)
	}

	switch ins {
	case INS_GET_NUM_SLOTS:
		return a.getNumSlots(cmd)
	case INS_WRITE:
		return a.write(cmd)
	case INS_READ:
		return a.read(cmd)
	case INS_ERASE_VALUE:
		return a.eraseValue(cmd)
	default:
		return a.eraseAll(cmd)
	}
}

func (a *Applet) getNumSlots(cmd *iso7816.CommandAPDU) *iso7816.ResponseAPDU {
	if len(cmd.Data) != 0 {
		return statusOnly(iso7816.SW_ERR_WRONG_LENGTH)
	}
	resp := make([]byte, NUM_SLOTS_BYTES)
	binary.BigEndian.PutUint32(resp, uint32(a.slots.NumSlots()))
	return iso7816.NewResponseAPDU(resp, iso7816.SW_NO_ERROR)
}

func (a *Applet) write(cmd *iso7816.CommandAPDU) *iso7816.ResponseAPDU {
	if len(cmd.Data) != writeLength {
		return statusOnly(iso7816.SW_ERR_WRONG_LENGTH)
	}
	id, sw := a.slotID(cmd.Data)
	if sw != iso7816.SW_NO_ERROR {
		return statusOnly(sw)
	}

	key := cmd.Data[SLOT_ID_BYTES : SLOT_ID_BYTES+SLOT_KEY_BYTES]
	value := cmd.Data[SLOT_ID_BYTES+SLOT_KEY_BYTES:]
	a.slots.Write(id, key, value)
	log().Debug("slot written", "slot", id)
	return statusOnly(iso7816.SW_NO_ERROR)
}

func (a *Applet) read(cmd *iso7816.CommandAPDU) *iso7816.ResponseAPDU {
	if len(cmd.Data) != readLength {
		return statusOnly(iso7816.SW_ERR_WRONG_LENGTH)
	}
	id, sw := a.slotID(cmd.Data)
	if sw != iso7816.SW_NO_ERROR {
		return statusOnly(sw)
	}

	res := a.slots.Read(id, cmd.Data[SLOT_ID_BYTES:])
	if res.Status == READ_SUCCESS {
		return iso7816.NewResponseAPDU(append([]byte{READ_SUCCESS}, res.Value...), iso7816.SW_NO_ERROR)
	}

	resp := make([]byte, 1+TIMEOUT_BYTES)
	resp[0] = res.Status
	binary.BigEndian.PutUint32(resp[1:], res.Timeout)
	return iso7816.NewResponseAPDU(resp, iso7816.SW_NO_ERROR)
}

func (a *Applet) eraseValue(cmd *iso7816.CommandAPDU) *iso7816.ResponseAPDU {
	if len(cmd.Data) != SLOT_ID_BYTES {
		return statusOnly(iso7816.SW_ERR_WRONG_LENGTH)
	}
	id, sw := a.slotID(cmd.Data)
	if sw != iso7816.SW_NO_ERROR {
		return statusOnly(sw)
	}

	a.slots.EraseValue(id)
	log().Debug("slot value erased", "slot", id)
	return statusOnly(iso7816.SW_NO_ERROR)
}

func (a *Applet) eraseAll(cmd *iso7816.CommandAPDU) *iso7816.ResponseAPDU {
	if len(cmd.Data) != 0 {
		return statusOnly(iso7816.SW_ERR_WRONG_LENGTH)
	}
	a.slots.EraseAll()
	log().Debug("all slots erased")
	return statusOnly(iso7816.SW_NO_ERROR)
}

// slotID decodes the leading 4-byte slot id of a payload.
func (a *Applet) slotID(data []byte) (uint16, iso7816.StatusWord) {
	raw := binary.BigEndian.Uint32(data[:SLOT_ID_BYTES])
	if raw>>16 != 0 || raw >= uint32(a.slots.NumSlots()) {
		return 0, SW_INVALID_SLOT_ID
	}
	return uint16(raw), iso7816.SW_NO_ERROR
}

// isWeaverClass reports whether cla is CLA on any logical channel, without
// chaining or secure messaging.
func isWeaverClass(cla byte) bool {
	c, err := iso7816.NewClass(cla)
	if err != nil {
		return false
	}
	base, err := c.OnChannel(0)
	return err == nil && base.Raw == CLA
}

func statusOnly(sw iso7816.StatusWord) *iso7816.ResponseAPDU {
	return iso7816.NewResponseAPDU(nil, sw)
}
