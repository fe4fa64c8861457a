package weaver

import "github.com/gregLibert/secure-element/pkg/iso7816"

// WEAVER APPLET PROTOCOL:
//
//	GET_NUM_SLOTS  80 02 00 00 Le            -> 00 00 nn nn
//	WRITE          80 04 00 00 24 id key val
//	READ           80 06 00 00 14 id key Le  -> 00 value | 7F/76 timeout
//	ERASE_VALUE    80 08 00 00 04 id
//	ERASE_ALL      80 0A 00 00
//
// Slot ids travel as 4 big-endian bytes; only the low 16 bits address a slot
// on the card. Keys and values are 16 bytes. Every command requires P1=P2=0.

// Class byte of every Weaver command.
const CLA byte = 0x80

// Instruction codes.
const (
	INS_GET_NUM_SLOTS iso7816.InsCode = 0x02
	INS_WRITE         iso7816.InsCode = 0x04
	INS_READ          iso7816.InsCode = 0x06
	INS_ERASE_VALUE   iso7816.InsCode = 0x08
	INS_ERASE_ALL     iso7816.InsCode = 0x0A
)

// Field sizes.
const (
	SLOT_ID_BYTES    = 4
	SLOT_KEY_BYTES   = 16
	SLOT_VALUE_BYTES = 16
	TIMEOUT_BYTES    = 4
	NUM_SLOTS_BYTES  = 4

	writeLength = SLOT_ID_BYTES + SLOT_KEY_BYTES + SLOT_VALUE_BYTES
	readLength  = SLOT_ID_BYTES + SLOT_KEY_BYTES
)

// First byte of a READ response.
const (
	READ_SUCCESS   byte = 0x00
	READ_WRONG_KEY byte = 0x7F
	READ_BACK_OFF  byte = 0x76
)

// SW_INVALID_SLOT_ID rejects a slot id outside the slot table.
const SW_INVALID_SLOT_ID iso7816.StatusWord = 0x6A86

// DefaultNumSlots is the slot count of a new CoreSlots.
const DefaultNumSlots = 64
