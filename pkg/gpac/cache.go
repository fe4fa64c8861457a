package gpac

import (
	"bytes"
	"encoding/hex"
	"sort"
)

// AccessRuleCache holds the parsed rule set of one Secure Element together
// with the refresh tag identifying its version. It is not safe for concurrent
// use; the Controller serializes access to it.
type AccessRuleCache struct {
	refreshTag []byte
	rules      map[ruleKey]*cacheEntry
}

type appletKind int

const (
	anyApplet appletKind = iota
	defaultApplet
	specificApplet
)

// ruleKey is the normalized (applet, application) pair of a REF-DO.
// An empty hash means every device application.
type ruleKey struct {
	kind appletKind
	aid  string
	hash string
}

type cacheEntry struct {
	ref    RefDO
	access *ChannelAccess
}

// CacheEntry is a snapshot of one cached rule.
type CacheEntry struct {
	Ref    RefDO
	Access *ChannelAccess
}

// NewAccessRuleCache creates an empty cache without refresh tag.
func NewAccessRuleCache() *AccessRuleCache {
	return &AccessRuleCache{rules: make(map[ruleKey]*cacheEntry)}
}

func keyOf(ref *RefDO) ruleKey {
	k := ruleKey{hash: hex.EncodeToString(ref.Hash)}
	switch {
	case len(ref.AID) > 0:
		k.kind = specificApplet
		k.aid = hex.EncodeToString(ref.AID)
	case ref.DefaultApplet:
		k.kind = defaultApplet
	}
	return k
}

// IsRefreshTagEqual compares tag with the stored refresh tag. Without a
// stored tag nothing compares equal.
func (c *AccessRuleCache) IsRefreshTagEqual(tag []byte) bool {
	if c.refreshTag == nil || tag == nil {
		return false
	}
	return bytes.Equal(c.refreshTag, tag)
}

// SetRefreshTag replaces the stored refresh tag. A nil tag forgets it.
func (c *AccessRuleCache) SetRefreshTag(tag []byte) {
	if tag == nil {
		c.refreshTag = nil
		return
	}
	c.refreshTag = append([]byte(nil), tag...)
}

// RefreshTag returns a copy of the stored refresh tag, or nil.
func (c *AccessRuleCache) RefreshTag() []byte {
	if c.refreshTag == nil {
		return nil
	}
	return append([]byte(nil), c.refreshTag...)
}

// ClearCache drops every rule.
func (c *AccessRuleCache) ClearCache() {
	c.rules = make(map[ruleKey]*cacheEntry)
}

// PutWithMerge inserts the rule for ref. A rule already stored for the same
// reference is merged with the new one (see ChannelAccess.Merge).
func (c *AccessRuleCache) PutWithMerge(ref *RefDO, ar *ArDO) error {
	access, err := NewChannelAccess(ar)
	if err != nil {
		return err
	}

	key := keyOf(ref)
	if existing, ok := c.rules[key]; ok {
		existing.access.Merge(access)
		log().Debug("merged access rule", "ref", ref.String(), "access", existing.access.String())
		return nil
	}

	c.rules[key] = &cacheEntry{
		ref: RefDO{
			AID:           append([]byte(nil), ref.AID...),
			DefaultApplet: ref.DefaultApplet,
			Hash:          append([]byte(nil), ref.Hash...),
			Package:       append([]byte(nil), ref.Package...),
		},
		access: access,
	}
	return nil
}

// Len returns the number of distinct references in the cache.
func (c *AccessRuleCache) Len() int {
	return len(c.rules)
}

// Lookup returns the access granted to an application, identified by the
// hash of its certificate, on an applet. A nil aid designates the default
// applet. Rules are searched in this order, first match wins:
//
//  1. exact applet, exact application
//  2. exact applet, any application
//  3. any applet, exact application
//  4. any applet, any application
//
// Without any matching rule the access is denied.
func (c *AccessRuleCache) Lookup(aid, hash []byte) *ChannelAccess {
	exact := ruleKey{kind: defaultApplet}
	if aid != nil {
		exact = ruleKey{kind: specificApplet, aid: hex.EncodeToString(aid)}
	}
	hashHex := hex.EncodeToString(hash)

	candidates := []ruleKey{
		{kind: exact.kind, aid: exact.aid, hash: hashHex},
		{kind: exact.kind, aid: exact.aid},
		{kind: anyApplet, hash: hashHex},
		{kind: anyApplet},
	}

	for _, k := range candidates {
		if e, ok := c.rules[k]; ok {
			return e.access.Clone()
		}
	}
	return DeniedChannelAccess("no access rule found")
}

// Entries returns the cached rules ordered by applet then application.
func (c *AccessRuleCache) Entries() []CacheEntry {
	keys := make([]ruleKey, 0, len(c.rules))
	for k := range c.rules {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].kind != keys[j].kind {
			return keys[i].kind > keys[j].kind
		}
		if keys[i].aid != keys[j].aid {
			return keys[i].aid < keys[j].aid
		}
		return keys[i].hash < keys[j].hash
	})

	out := make([]CacheEntry, 0, len(keys))
	for _, k := range keys {
		e := c.rules[k]
		out = append(out, CacheEntry{Ref: e.ref, Access: e.access.Clone()})
	}
	return out
}
