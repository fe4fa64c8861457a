// Package pcsc opens logical channels to applets of a card behind a PC/SC
// reader.
package pcsc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ebfe/scard"

	"github.com/gregLibert/secure-element/internal/syncutil"
	"github.com/gregLibert/secure-element/pkg/gpac"
	"github.com/gregLibert/secure-element/pkg/iso7816"
)

// ErrNoReader is returned by Open when no matching reader is present.
var ErrNoReader = errors.New("no smart card reader found")

// levelTrace logs every APDU exchanged with the card.
const levelTrace = slog.LevelDebug - 4

// Terminal multiplexes logical channels over one card connection. Commands
// from every channel are serialized.
type Terminal struct {
	mu     syncutil.Mutex
	card   iso7816.Transmitter
	client *iso7816.Client
	basic  iso7816.Class
	log    *slog.Logger

	release func() error
}

// Open connects to a PC/SC reader. An empty name selects the first reader;
// otherwise the first reader whose name contains name is used.
func Open(name string, log *slog.Logger) (*Terminal, error) {
	if log == nil {
		log = slog.Default()
	}

	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("establishing PC/SC context: %w", err)
	}

	reader, err := pickReader(ctx, name)
	if err != nil {
		if relErr := ctx.Release(); relErr != nil {
			log.Warn("failed to release context", "error", relErr)
		}
		return nil, err
	}

	// Force T=0 or T=1 to avoid "Parameter Incorrect" errors.
	card, err := ctx.Connect(reader, scard.ShareShared, scard.ProtocolT0|scard.ProtocolT1)
	if err != nil {
		if relErr := ctx.Release(); relErr != nil {
			log.Warn("failed to release context", "error", relErr)
		}
		return nil, fmt.Errorf("connecting to %q: %w", reader, err)
	}
	log.Info("connected", "reader", reader)

	t := NewTerminal(card, log)
	t.release = func() error {
		return errors.Join(card.Disconnect(scard.LeaveCard), ctx.Release())
	}
	return t, nil
}

func pickReader(ctx *scard.Context, name string) (string, error) {
	readers, err := ctx.ListReaders()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoReader, err)
	}
	for _, r := range readers {
		if name == "" || strings.Contains(r, name) {
			return r, nil
		}
	}
	if name != "" {
		return "", fmt.Errorf("%w: no reader matches %q", ErrNoReader, name)
	}
	return "", ErrNoReader
}

// NewTerminal wraps an already connected card. A nil logger uses slog.Default.
func NewTerminal(card iso7816.Transmitter, log *slog.Logger) *Terminal {
	if log == nil {
		log = slog.Default()
	}
	basic, _ := iso7816.NewClass(0x00)
	t := &Terminal{card: card, basic: basic, log: log}
	t.client = iso7816.NewClient(transmitFunc(t.transmit))
	return t
}

// Close disconnects from the card when the terminal owns the connection.
func (t *Terminal) Close() error {
	if t.release == nil {
		return nil
	}
	return t.release()
}

// OpenLogicalChannelWithoutChannelAccess opens a channel to aid with no
// access set yet. A nil channel and a nil error mean the applet is absent.
func (t *Terminal) OpenLogicalChannelWithoutChannelAccess(aid []byte) (gpac.Channel, error) {
	ch, err := t.OpenLogicalChannel(aid)
	if ch == nil {
		return nil, err
	}
	return ch, nil
}

// OpenLogicalChannel asks the card for a new channel and selects aid on it.
func (t *Terminal) OpenLogicalChannel(aid []byte) (*Channel, error) {
	resp, err := t.client.Exchange(iso7816.OpenChannel(t.basic))
	if err != nil {
		return nil, err
	}
	if resp.Status != iso7816.SW_NO_ERROR {
		return nil, fmt.Errorf("MANAGE CHANNEL open failed: %s", resp.Status.Verbose())
	}
	if len(resp.Data) != 1 || resp.Data[0] == 0 || resp.Data[0] > iso7816.MaxLogicalChannel {
		return nil, fmt.Errorf("MANAGE CHANNEL open returned %X", resp.Data)
	}

	ch := &Channel{terminal: t, number: resp.Data[0]}
	cla, err := iso7816.NewInterindustryClass(false, iso7816.SMNone, ch.number)
	if err != nil {
		return nil, err
	}

	trace, err := t.client.Send(iso7816.SelectByAID(cla, aid))
	if err != nil {
		t.abandon(ch.number)
		return nil, err
	}

	last := trace.Response()
	switch last.Status {
	case iso7816.SW_NO_ERROR:
	case iso7816.SW_ERR_FILE_NOT_FOUND:
		t.log.Debug("applet not found", "aid", fmt.Sprintf("%X", aid))
		t.abandon(ch.number)
		return nil, nil
	default:
		t.abandon(ch.number)
		return nil, fmt.Errorf("SELECT %X failed: %s", aid, last.Status.Verbose())
	}

	ch.selectResponse = last.Data
	t.log.Debug("logical channel opened", "channel", ch.number, "aid", fmt.Sprintf("%X", aid))
	return ch, nil
}

// abandon closes a channel whose SELECT did not succeed.
func (t *Terminal) abandon(number uint8) {
	if err := t.closeChannel(number); err != nil {
		t.log.Warn("failed to close channel", "channel", number, "error", err)
	}
}

func (t *Terminal) closeChannel(number uint8) error {
	resp, err := t.client.Exchange(iso7816.CloseChannel(t.basic, number))
	if err != nil {
		return err
	}
	if resp.Status != iso7816.SW_NO_ERROR {
		return fmt.Errorf("MANAGE CHANNEL close %d failed: %s", number, resp.Status.Verbose())
	}
	return nil
}

func (t *Terminal) transmit(cmd []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.log.Log(context.Background(), levelTrace, "apdu", "command", fmt.Sprintf("%X", cmd))
	resp, err := t.card.Transmit(cmd)
	if err != nil {
		return nil, err
	}
	t.log.Log(context.Background(), levelTrace, "apdu", "response", fmt.Sprintf("%X", resp))
	return resp, nil
}

type transmitFunc func([]byte) ([]byte, error)

func (f transmitFunc) Transmit(cmd []byte) ([]byte, error) { return f(cmd) }
