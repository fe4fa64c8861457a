package gpac

import (
	"errors"
	"fmt"

	"github.com/gregLibert/secure-element/internal/syncutil"
	"github.com/gregLibert/secure-element/pkg/iso7816"
)

// ARAMAID is the AID of the GlobalPlatform Access Rule Application Master.
var ARAMAID = []byte{0xA0, 0x00, 0x00, 0x01, 0x51, 0x41, 0x43, 0x4C, 0x00}

// Channel is a logical channel to an applet on the Secure Element.
type Channel interface {
	iso7816.Transmitter
	SetChannelAccess(access *ChannelAccess)
	Close() error
}

// Terminal opens channels to a Secure Element. A nil channel with a nil
// error means the applet is not present.
type Terminal interface {
	OpenLogicalChannelWithoutChannelAccess(aid []byte) (Channel, error)
}

// Controller keeps an AccessRuleCache in sync with the ARA-M of one terminal.
type Controller struct {
	mu       syncutil.RWMutex
	terminal Terminal
	cache    *AccessRuleCache
	aid      []byte
	maxChunk int
}

// Option configures a Controller.
type Option func(*Controller)

// WithAID targets another access rule applet than the standard ARA-M.
func WithAID(aid []byte) Option {
	return func(c *Controller) {
		c.aid = append([]byte(nil), aid...)
	}
}

// WithMaxChunk sets the Le cap used while paging rules.
func WithMaxChunk(n int) Option {
	return func(c *Controller) {
		c.maxChunk = n
	}
}

// NewController creates a controller. A nil cache gets a fresh one.
func NewController(terminal Terminal, cache *AccessRuleCache, opts ...Option) *Controller {
	if cache == nil {
		cache = NewAccessRuleCache()
	}
	c := &Controller{
		terminal: terminal,
		cache:    cache,
		aid:      ARAMAID,
		maxChunk: DefaultMaxChunk,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize brings the cache up to date with the rules on the card.
//
// The rules are read again only when the refresh tag reported by the applet
// differs from the cached one. Transport failures are returned unmodified;
// any other failure is an *AccessControlError. After a failure the cache
// holds no rules and no refresh tag.
func (c *Controller) Initialize() (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	defer func() {
		if err != nil {
			c.cache.ClearCache()
			c.cache.SetRefreshTag(nil)
		}
	}()

	channel, err := c.terminal.OpenLogicalChannelWithoutChannelAccess(c.aid)
	if err != nil {
		if isTransportError(err) {
			return err
		}
		return wrapError("cannot open access rule channel", err)
	}
	if channel == nil {
		return fmt.Errorf("%w: no channel to applet %X", ErrMissingResource, c.aid)
	}
	defer func() {
		if cerr := channel.Close(); cerr != nil {
			log().Warn("failed to close access rule channel", "error", cerr)
		}
	}()

	channel.SetChannelAccess(AllowedChannelAccess("access rule applet channel"))

	if err := c.refresh(NewAccessRuleApplet(channel, c.maxChunk)); err != nil {
		var ace *AccessControlError
		if isTransportError(err) || errors.As(err, &ace) {
			return err
		}
		return wrapError("access rule retrieval failed", err)
	}
	return nil
}

func (c *Controller) refresh(applet *AccessRuleApplet) error {
	tag, err := applet.ReadRefreshTag()
	if err != nil {
		return err
	}

	if c.cache.IsRefreshTagEqual(tag) {
		log().Debug("refresh tag unchanged, reusing cached rules", "tag", fmt.Sprintf("%X", tag))
		return nil
	}

	c.cache.SetRefreshTag(tag)
	c.cache.ClearCache()

	rules, err := applet.ReadAllAccessRules()
	if err != nil {
		return err
	}
	if rules.Empty {
		log().Info("access rules loaded", "rules", 0, "tag", fmt.Sprintf("%X", tag))
		return nil
	}

	do, err := DecodeResponse(rules.Raw)
	if err != nil {
		return wrapError("invalid rule set", err)
	}
	all, ok := do.(*AllRefArDO)
	if !ok {
		return &AccessControlError{Msg: fmt.Sprintf("unexpected data object %X instead of Response-ALL-AR-DO", do.DOTag())}
	}

	for i := range all.Rules {
		rule := &all.Rules[i]
		if err := c.cache.PutWithMerge(&rule.Ref, &rule.Ar); err != nil {
			return wrapError(fmt.Sprintf("rule %d", i+1), err)
		}
	}

	log().Info("access rules loaded", "rules", len(all.Rules), "entries", c.cache.Len(), "tag", fmt.Sprintf("%X", tag))
	return nil
}

// ChannelAccess returns the access granted to a device application on an
// applet. aid nil designates the default applet.
func (c *Controller) ChannelAccess(aid, certHash []byte) *ChannelAccess {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache.Lookup(aid, certHash)
}

// Entries returns a snapshot of the cached rules.
func (c *Controller) Entries() []CacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache.Entries()
}

// RefreshTag returns the refresh tag of the cached rules.
func (c *Controller) RefreshTag() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache.RefreshTag()
}
