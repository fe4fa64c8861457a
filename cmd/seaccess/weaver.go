package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gregLibert/secure-element/internal/pcsc"
	"github.com/gregLibert/secure-element/pkg/gpac"
	"github.com/gregLibert/secure-element/pkg/tlv"
	"github.com/gregLibert/secure-element/pkg/weaver"
)

type weaverCmd struct {
	*app
	certHash   string
	passphrase string
}

func (a *app) cmdWeaver() *cobra.Command {
	w := &weaverCmd{app: a}

	cmd := &cobra.Command{
		Use:   "weaver",
		Short: "Weaver applet slots",
	}
	cmd.PersistentFlags().StringVar(&w.certHash, "cert-hash", "",
		"Enforce the access rules granted to this certificate hash (hex)")
	cmd.PersistentFlags().StringVar(&w.passphrase, "passphrase", "",
		"Derive slot keys from this passphrase instead of passing KEY")

	cmd.AddCommand(&cobra.Command{
		Use:   "slots",
		Short: "Print the number of slots",
		Args:  cobra.NoArgs,
		RunE: w.run(func(cmd *cobra.Command, c *weaver.Client, _ []string) error {
			n, err := c.NumSlots()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "write SLOT [KEY] VALUE",
		Short: "Store a value behind a key",
		Args:  w.keyedArgs(1),
		Example: `  seaccess weaver write 1 000102030405060708090A0B0C0D0E0F 00112233445566778899AABBCCDDEEFF
  seaccess weaver --passphrase 1234 write 1 00112233445566778899AABBCCDDEEFF`,
		RunE: w.run(func(_ *cobra.Command, c *weaver.Client, args []string) error {
			slot, key, rest, err := w.slotAndKey(args)
			if err != nil {
				return err
			}
			value, err := parseBlock("value", rest[0], weaver.SLOT_VALUE_BYTES)
			if err != nil {
				return err
			}
			return c.Write(slot, key, value)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "read SLOT [KEY]",
		Short: "Read a value with its key",
		Args:  w.keyedArgs(0),
		RunE: w.run(func(cmd *cobra.Command, c *weaver.Client, args []string) error {
			slot, key, _, err := w.slotAndKey(args)
			if err != nil {
				return err
			}

			res, err := c.Read(slot, key)
			if err != nil {
				return err
			}
			switch res.Status {
			case weaver.READ_SUCCESS:
				fmt.Fprintf(cmd.OutOrStdout(), "%X\n", res.Value)
				return nil
			case weaver.READ_BACK_OFF:
				return fmt.Errorf("slot %d throttled, retry in %d s", slot, res.Timeout)
			default:
				return fmt.Errorf("wrong key for slot %d, next attempt in %d s", slot, res.Timeout)
			}
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "erase-value SLOT",
		Short: "Zero the value of a slot and keep its key",
		Args:  cobra.ExactArgs(1),
		RunE: w.run(func(_ *cobra.Command, c *weaver.Client, args []string) error {
			slot, err := parseSlot(args[0])
			if err != nil {
				return err
			}
			return c.EraseValue(slot)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "erase-all",
		Short: "Zero every slot",
		Args:  cobra.NoArgs,
		RunE: w.run(func(_ *cobra.Command, c *weaver.Client, _ []string) error {
			return c.EraseAll()
		}),
	})

	return cmd
}

type weaverFunc func(cmd *cobra.Command, c *weaver.Client, args []string) error

// run opens a channel to the Weaver applet and hands a client to fn.
func (w *weaverCmd) run(fn weaverFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return w.withTerminal(func(term *pcsc.Terminal) error {
			access, err := w.channelAccess(term)
			if err != nil {
				return err
			}

			aid := w.cfg.WeaverAIDBytes()
			ch, err := term.OpenLogicalChannel(aid)
			if err != nil {
				return err
			}
			if ch == nil {
				return fmt.Errorf("weaver applet %X not found", aid)
			}
			defer func() {
				if err := ch.Close(); err != nil {
					w.log.Warn("failed to close channel", "error", err)
				}
			}()

			ch.SetChannelAccess(access)
			return fn(cmd, weaver.NewClient(ch), args)
		})
	}
}

// channelAccess grants everything unless a certificate hash asks for the
// access rules of the card to be applied.
func (w *weaverCmd) channelAccess(term *pcsc.Terminal) (*gpac.ChannelAccess, error) {
	if w.certHash == "" {
		return gpac.AllowedChannelAccess("seaccess"), nil
	}

	hash, err := tlv.ParseHex(w.certHash)
	if err != nil {
		return nil, fmt.Errorf("invalid --cert-hash: %w", err)
	}

	c := w.controller(term)
	if err := c.Initialize(); err != nil {
		return nil, err
	}
	access := c.ChannelAccess(w.cfg.WeaverAIDBytes(), hash)
	w.log.Info("channel access", "access", access.String())
	return access, nil
}

// keyedArgs expects SLOT, KEY unless --passphrase is set, then rest more.
func (w *weaverCmd) keyedArgs(rest int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		n := 2 + rest
		if w.passphrase != "" {
			n--
		}
		return cobra.ExactArgs(n)(cmd, args)
	}
}

// slotAndKey parses SLOT and the slot key, and returns the arguments left.
func (w *weaverCmd) slotAndKey(args []string) (uint32, []byte, []string, error) {
	slot, err := parseSlot(args[0])
	if err != nil {
		return 0, nil, nil, err
	}
	if w.passphrase != "" {
		return slot, weaver.KeyFromPassphrase(w.passphrase, slot), args[1:], nil
	}
	key, err := parseBlock("key", args[1], weaver.SLOT_KEY_BYTES)
	if err != nil {
		return 0, nil, nil, err
	}
	return slot, key, args[2:], nil
}

func parseSlot(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid slot %q: %w", s, err)
	}
	return uint32(n), nil
}

func parseBlock(name, s string, size int) ([]byte, error) {
	b, err := tlv.ParseHex(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	if len(b) != size {
		return nil, fmt.Errorf("%s of %d bytes, want %d", name, len(b), size)
	}
	return b, nil
}
