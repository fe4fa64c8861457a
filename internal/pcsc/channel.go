package pcsc

import (
	"fmt"

	"github.com/gregLibert/secure-element/internal/syncutil"
	"github.com/gregLibert/secure-element/pkg/gpac"
	"github.com/gregLibert/secure-element/pkg/iso7816"
)

// Both errors wrap iso7816.ErrNotTransmitted: the command never left the
// host, so an iso7816.Client reports them as they are, not as transport
// failures.
var (
	// ErrChannelClosed is returned when using a closed channel.
	ErrChannelClosed = fmt.Errorf("channel closed: %w", iso7816.ErrNotTransmitted)
	// ErrAccessDenied is returned when the channel access rejects a command.
	ErrAccessDenied = fmt.Errorf("command not allowed on channel: %w", iso7816.ErrNotTransmitted)
)

// Channel is a logical channel to one selected applet. Commands keep their
// class byte; the channel number is patched in on the way out.
type Channel struct {
	mu             syncutil.Mutex
	terminal       *Terminal
	number         uint8
	selectResponse []byte
	access         *gpac.ChannelAccess
	closed         bool
}

// Number returns the logical channel number.
func (c *Channel) Number() uint8 { return c.number }

// SelectResponse returns the data of the SELECT that opened the channel.
func (c *Channel) SelectResponse() []byte { return c.selectResponse }

// SetChannelAccess sets the access checked on every command.
func (c *Channel) SetChannelAccess(access *gpac.ChannelAccess) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.access = access
}

// Transmit sends a raw command on the channel. Without channel access every
// command is refused. MANAGE CHANNEL and SELECT by name are always refused
// because they would change what the channel points to.
func (c *Channel) Transmit(cmd []byte) ([]byte, error) {
	c.mu.Lock()
	closed, access := c.closed, c.access
	c.mu.Unlock()

	if closed {
		return nil, ErrChannelClosed
	}
	if len(cmd) < 4 {
		return nil, fmt.Errorf("command of %d bytes", len(cmd))
	}

	ins := iso7816.InsCode(cmd[1])
	switch {
	case ins == iso7816.INS_MANAGE_CHANNEL:
		return nil, fmt.Errorf("%w: MANAGE CHANNEL", ErrAccessDenied)
	case iso7816.IsSelectByName(cmd):
		return nil, fmt.Errorf("%w: SELECT by name", ErrAccessDenied)
	case access == nil:
		return nil, fmt.Errorf("%w: no channel access set", ErrAccessDenied)
	case ins == iso7816.INS_GET_RESPONSE:
		// continues a command that was already allowed
	case !access.IsAPDUAllowed(cmd):
		return nil, fmt.Errorf("%w: %X (%s)", ErrAccessDenied, cmd[:4], access.Reason)
	}

	cla, err := iso7816.ChannelCLA(cmd[0], c.number)
	if err != nil {
		return nil, err
	}
	out := append([]byte{cla}, cmd[1:]...)
	return c.terminal.transmit(out)
}

// Close closes the logical channel on the card. Closing twice is a no-op.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return c.terminal.closeChannel(c.number)
}
