package iso7816

// GET DATA COMMAND LOGIC (ISO 7816-4):
// The GET DATA command (INS 'CA') retrieves a data object identified by P1-P2.
// P1-P2 hold the tag of the requested object ('00xx' for a one-byte tag).
// Applets such as the GlobalPlatform ARA-M use a proprietary class ('80')
// and reserved tags to page through large objects.

// NewGetDataCommand creates a GET DATA command for a two-byte tag.
// Ne is the number of bytes the caller is ready to receive.
func NewGetDataCommand(cla Class, tag uint16, ne int) *CommandAPDU {
	return NewCommandAPDU(cla, MustInstruction(INS_GET_DATA), byte(tag>>8), byte(tag), nil, ne)
}
