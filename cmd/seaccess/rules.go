package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gregLibert/secure-element/internal/pcsc"
	"github.com/gregLibert/secure-element/pkg/gpac"
)

func (a *app) cmdRules() *cobra.Command {
	var describe bool

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Load the access rules of the ARA-M and print the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withTerminal(func(term *pcsc.Terminal) error {
				if describe {
					return a.describeRules(cmd, term)
				}
				return a.printRules(cmd, term)
			})
		},
	}

	cmd.Flags().BoolVar(&describe, "describe", false, "Print the rule set as read, before merging")
	return cmd
}

func (a *app) controller(term *pcsc.Terminal) *gpac.Controller {
	return gpac.NewController(term, nil,
		gpac.WithAID(a.cfg.AraAIDBytes()),
		gpac.WithMaxChunk(a.cfg.MaxChunk))
}

func (a *app) printRules(cmd *cobra.Command, term *pcsc.Terminal) error {
	c := a.controller(term)
	if err := c.Initialize(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	entries := c.Entries()
	fmt.Fprintf(out, "refresh tag %X, %d rules\n", c.RefreshTag(), len(entries))
	for _, e := range entries {
		fmt.Fprintf(out, "  %s\n      %s\n", e.Ref.String(), e.Access.String())
	}
	return nil
}

// describeRules reads the raw rule set on a channel of its own.
func (a *app) describeRules(cmd *cobra.Command, term *pcsc.Terminal) error {
	return a.withARA(term, func(applet *gpac.AccessRuleApplet) error {
		rules, err := applet.ReadAllAccessRules()
		if err != nil {
			return err
		}
		if rules.Empty {
			fmt.Fprintln(cmd.OutOrStdout(), "no access rules")
			return nil
		}

		do, err := gpac.DecodeResponse(rules.Raw)
		if err != nil {
			return err
		}
		all, ok := do.(*gpac.AllRefArDO)
		if !ok {
			return fmt.Errorf("unexpected data object %X", do.DOTag())
		}
		fmt.Fprintln(cmd.OutOrStdout(), all.Describe())
		return nil
	})
}

func (a *app) cmdRefreshTag() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-tag",
		Short: "Print the refresh tag of the ARA-M",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withTerminal(func(term *pcsc.Terminal) error {
				return a.withARA(term, func(applet *gpac.AccessRuleApplet) error {
					tag, err := applet.ReadRefreshTag()
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%X\n", tag)
					return nil
				})
			})
		},
	}
}

func (a *app) withARA(term *pcsc.Terminal, fn func(*gpac.AccessRuleApplet) error) error {
	aid := a.cfg.AraAIDBytes()
	ch, err := term.OpenLogicalChannel(aid)
	if err != nil {
		return err
	}
	if ch == nil {
		return fmt.Errorf("%w: %X", gpac.ErrMissingResource, aid)
	}
	defer func() {
		if err := ch.Close(); err != nil {
			a.log.Warn("failed to close channel", "error", err)
		}
	}()

	ch.SetChannelAccess(gpac.AllowedChannelAccess("seaccess"))
	return fn(gpac.NewAccessRuleApplet(ch, a.cfg.MaxChunk))
}
