package iso7816

import (
	"fmt"

	"github.com/gregLibert/secure-element/pkg/bits"
)

// Class Byte (CLA) Structure according to ISO/IEC 7816-4.
//
// The CLA byte conveys the command class, covering secure messaging (SM), command chaining,
// and logical channel selection.
//
// Structure:
// Bit 8: Proprietary (1) or Interindustry (0).
// Bit 7: First (0) or Further (1) range.
// Bit 5: Command Chaining (0=Last/Only, 1=More follow).
//
// 1. First range (x0xx xxxx), channels 0-3:
//    - Bits 4-3: Secure Messaging (2 bits, 4 states).
//    - Bits 2-1: Logical Channel number.
//
// 2. Further range (x1xx xxxx), channels 4-19:
//    - Bit 6: Secure Messaging (1 bit: No SM or SM active).
//    - Bits 4-1: Logical Channel number minus 4.
//
// Proprietary classes follow the GlobalPlatform coding, which reuses the
// same bits below bit 8: '80'-'83' address channels 0-3, 'C0'-'CF' channels
// 4-19. Secure messaging is '84' in the first range and bit 6 ('E0') in the
// further range; both decode as SMProprietary. In the first range bit 6 has
// no meaning and is kept as is, so classes like 'A0' survive a channel change.

// SecureMessaging defines the security level applied to the APDU.
type SecureMessaging int

const (
	// SMNone indicates no secure messaging or no indication given.
	SMNone SecureMessaging = 0
	// SMProprietary indicates a proprietary secure messaging format (First range only).
	SMProprietary SecureMessaging = 1
	// SMHeaderNoProc indicates SM according to ISO, where the header is not processed.
	SMHeaderNoProc SecureMessaging = 2
	// SMHeaderAuth indicates SM according to ISO, where the header is authenticated (First range only).
	SMHeaderAuth SecureMessaging = 3
)

// MaxLogicalChannel is the highest channel number encodable in CLA.
const MaxLogicalChannel = 19

// Class represents the parsed ISO 7816-4 Class byte (CLA).
type Class struct {
	Raw             byte
	IsProprietary   bool
	IsChained       bool
	SecureMessaging SecureMessaging
	Channel         uint8 // Logical channel number (0-19)
}

// NewClass creates a Class object by decoding a raw CLA byte.
func NewClass(cla byte) (Class, error) {
	if cla == 0xFF {
		return Class{}, fmt.Errorf("invalid CLA value: 0xFF is reserved")
	}

	c := Class{
		Raw:           cla,
		IsProprietary: bits.IsSet(cla, 8),
		IsChained:     bits.IsSet(cla, 5),
	}

	if !bits.IsSet(cla, 7) {
		c.SecureMessaging = SecureMessaging(bits.GetRange(cla, 4, 3))
		c.Channel = bits.GetRange(cla, 2, 1)
		return c, nil
	}

	if bits.IsSet(cla, 6) {
		c.SecureMessaging = SMHeaderNoProc
		if c.IsProprietary {
			c.SecureMessaging = SMProprietary
		}
	}
	c.Channel = bits.GetRange(cla, 4, 1) + 4
	return c, nil
}

// NewInterindustryClass creates a Class object from parameters.
// It automatically selects the First or Further range based on the channel number.
func NewInterindustryClass(isChained bool, sm SecureMessaging, channel uint8) (Class, error) {
	c := Class{
		IsChained:       isChained,
		SecureMessaging: sm,
		Channel:         channel,
	}

	raw, err := c.Encode()
	if err != nil {
		return Class{}, err
	}
	c.Raw = raw

	return c, nil
}

// Encode converts the Class object back to its byte representation.
func (c *Class) Encode() (byte, error) {
	if c.Channel > MaxLogicalChannel {
		return 0, fmt.Errorf("channel %d out of range (max %d)", c.Channel, MaxLogicalChannel)
	}

	var res byte
	if c.IsProprietary {
		res = bits.Set(res, 8)
	}
	if c.IsChained {
		res = bits.Set(res, 5)
	}

	if c.Channel <= 3 {
		if c.IsProprietary && !bits.IsSet(c.Raw, 7) && bits.IsSet(c.Raw, 6) {
			res = bits.Set(res, 6)
		}
		res = bits.SetRange(res, 4, 3, byte(c.SecureMessaging))
		res = bits.SetRange(res, 2, 1, c.Channel)
		return res, nil
	}

	// The further range only signals SM or nothing.
	switch {
	case c.SecureMessaging == SMNone:
	case c.SecureMessaging == SMHeaderNoProc && !c.IsProprietary,
		c.SecureMessaging == SMProprietary && c.IsProprietary:
		res = bits.Set(res, 6)
	default:
		return 0, fmt.Errorf("SM indicator %d not supported on channel %d (further range)", c.SecureMessaging, c.Channel)
	}
	res = bits.Set(res, 7)
	res = bits.SetRange(res, 4, 1, c.Channel-4)
	return res, nil
}

// OnChannel returns a copy of c addressing another logical channel, with
// Raw re-encoded. Chaining and secure messaging are preserved.
func (c Class) OnChannel(channel uint8) (Class, error) {
	c.Channel = channel
	raw, err := c.Encode()
	if err != nil {
		return Class{}, err
	}
	c.Raw = raw
	return c, nil
}

// Verbose returns a human-readable description of the CLA byte configuration.
func (c Class) Verbose() string {
	kind := "Interindustry"
	if c.IsProprietary {
		kind = fmt.Sprintf("Proprietary (0x%02X)", c.Raw)
	}

	rangeName := "First (Ch 0-3)"
	if c.Channel >= 4 {
		rangeName = "Further (Ch 4-19)"
	}

	smDesc := "Unknown"
	switch c.SecureMessaging {
	case SMNone:
		smDesc = "None"
	case SMProprietary:
		smDesc = "Proprietary"
	case SMHeaderNoProc:
		smDesc = "ISO (Header not processed)"
	case SMHeaderAuth:
		smDesc = "ISO (Header authenticated)"
	}

	chaining := "Last or only command"
	if c.IsChained {
		chaining = "More commands follow (Chaining)"
	}

	return fmt.Sprintf(
		"Class: %s\nRange: %s\nChaining: %s\nSecure Messaging: %s\nLogical Channel: %d",
		kind, rangeName, chaining, smDesc, c.Channel,
	)
}
