package iso7816

// MANAGE CHANNEL COMMAND LOGIC (ISO 7816-4):
// The MANAGE CHANNEL command (INS '70') opens or closes a logical channel.
//
// P1:
// - 00: Open a channel. With P2=00 the card assigns the number and returns it (Le=1).
// - 80: Close the channel given in P2.
//
// Once a channel is open, every command targeting it must carry the channel
// number in its CLA byte, re-encoded through Class.OnChannel.

const (
	manageChannelOpen  byte = 0x00
	manageChannelClose byte = 0x80
)

// OpenChannel creates a MANAGE CHANNEL command asking the card to assign a new channel.
func OpenChannel(cla Class) *CommandAPDU {
	return NewCommandAPDU(cla, MustInstruction(INS_MANAGE_CHANNEL), manageChannelOpen, 0x00, nil, 1)
}

// CloseChannel creates a MANAGE CHANNEL command closing the given channel.
func CloseChannel(cla Class, channel uint8) *CommandAPDU {
	return NewCommandAPDU(cla, MustInstruction(INS_MANAGE_CHANNEL), manageChannelClose, channel, nil, 0)
}

// ChannelCLA rewrites a raw CLA byte so that it targets the given logical channel.
func ChannelCLA(cla byte, channel uint8) (byte, error) {
	c, err := NewClass(cla)
	if err != nil {
		return 0, err
	}
	moved, err := c.OnChannel(channel)
	if err != nil {
		return 0, err
	}
	return moved.Raw, nil
}
