package gpac

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gregLibert/secure-element/pkg/iso7816"
	"github.com/gregLibert/secure-element/pkg/tlv"
)

func sampleRules() []byte {
	return allArDo(
		refArDo(refDo(aidRef(testAID), hashRef(testHash)), arDo(apduAlways(), nfcAlways())),
		refArDo(refDo(hashRef(nil)), arDo(apduNever())),
	)
}

func TestController_Initialize(t *testing.T) {
	f := newFakeARA(tagV1, sampleRules())
	c := NewController(f, nil)

	require.NoError(t, c.Initialize())

	assert.Equal(t, 1, f.opened)
	assert.Equal(t, 1, f.closed)
	assert.Equal(t, AccessAllowed, f.access.Access, "channel to the ARA-M is trusted")
	assert.Equal(t, tagV1, c.RefreshTag())
	assert.Len(t, c.Entries(), 2)

	access := c.ChannelAccess(testAID, testHash)
	assert.Equal(t, AccessAllowed, access.Access)
	assert.True(t, access.IsNFCAllowed())

	access = c.ChannelAccess(otherAID, testHash)
	assert.Equal(t, AccessDenied, access.Access)
}

func TestController_Initialize_RefreshTagUnchanged(t *testing.T) {
	f := newFakeARA(tagV1, sampleRules())
	c := NewController(f, nil)

	require.NoError(t, c.Initialize())
	require.NoError(t, c.Initialize())

	assert.Equal(t, 2, f.calls[getDataRefreshTag])
	assert.Equal(t, 1, f.calls[getDataAll], "rules must not be read again")
	assert.Equal(t, 2, f.closed)
	assert.Len(t, c.Entries(), 2)
}

func TestController_Initialize_RefreshTagChanged(t *testing.T) {
	f := newFakeARA(tagV1, sampleRules())
	c := NewController(f, nil)
	require.NoError(t, c.Initialize())

	f.refreshTag = tagV2
	f.rules = allArDo(refArDo(refDo(aidRef(otherAID), hashRef(nil)), arDo(apduAlways())))
	require.NoError(t, c.Initialize())

	assert.Equal(t, 2, f.calls[getDataAll])
	assert.Equal(t, tagV2, c.RefreshTag())

	entries := c.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, otherAID, entries[0].Ref.AID)
	assert.Equal(t, AccessDenied, c.ChannelAccess(testAID, testHash).Access, "old rules are gone")
	assert.Equal(t, AccessAllowed, c.ChannelAccess(otherAID, testHash).Access)
}

func TestController_Initialize_NoRules(t *testing.T) {
	f := newFakeARA(tagV1, nil)
	c := NewController(f, nil)

	require.NoError(t, c.Initialize())
	assert.Empty(t, c.Entries())
	assert.Equal(t, tagV1, c.RefreshTag())

	access := c.ChannelAccess(testAID, testHash)
	assert.Equal(t, AccessDenied, access.Access)
	assert.Equal(t, "no access rule found", access.Reason)

	require.NoError(t, c.Initialize())
	assert.Equal(t, 1, f.calls[getDataAll])
}

func TestController_Initialize_MissingApplet(t *testing.T) {
	f := newFakeARA(tagV1, sampleRules())
	f.notFound = true
	c := NewController(f, nil)

	err := c.Initialize()
	require.ErrorIs(t, err, ErrMissingResource)
	assert.Zero(t, f.opened)
	assert.Nil(t, c.RefreshTag())
}

func TestController_Initialize_OpenError(t *testing.T) {
	t.Run("Protocol", func(t *testing.T) {
		openErr := errors.New("MANAGE CHANNEL open failed: 6881")
		f := newFakeARA(tagV1, sampleRules())
		f.openErr = openErr

		err := NewController(f, nil).Initialize()
		var ace *AccessControlError
		require.ErrorAs(t, err, &ace)
		assert.ErrorIs(t, err, openErr)
	})

	t.Run("Transport", func(t *testing.T) {
		ioErr := &iso7816.TransmitError{Err: errors.New("reader removed")}
		f := newFakeARA(tagV1, sampleRules())
		f.openErr = ioErr

		err := NewController(f, nil).Initialize()
		assert.Same(t, ioErr, err)
	})
}

func TestController_Initialize_TransportError(t *testing.T) {
	f := newFakeARA(tagV1, sampleRules())
	c := NewController(f, nil)
	require.NoError(t, c.Initialize())

	ioErr := errors.New("card removed")
	f.refreshTag = tagV2
	f.transmitErr = ioErr

	err := c.Initialize()
	var te *iso7816.TransmitError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, ioErr)

	var ace *AccessControlError
	assert.False(t, errors.As(err, &ace), "transport errors are not wrapped")
	assert.Equal(t, 2, f.closed, "channel closed on failure")
	assert.Empty(t, c.Entries())
	assert.Nil(t, c.RefreshTag())
}

func TestController_Initialize_ProtocolError(t *testing.T) {
	f := newFakeARA(tagV1, sampleRules())
	f.failOn, f.failStatus = getDataAll, iso7816.SW_ERR_SECURITY_STATUS_NOT_SAT
	c := NewController(f, nil)

	err := c.Initialize()
	var ace *AccessControlError
	require.ErrorAs(t, err, &ace)
	assert.Equal(t, iso7816.SW_ERR_SECURITY_STATUS_NOT_SAT, ace.Status)
	assert.Equal(t, 1, f.closed)
	assert.Empty(t, c.Entries())
	assert.Nil(t, c.RefreshTag(), "a failed read must not leave a refresh tag behind")

	// Same refresh tag as the failed attempt: rules are read again.
	f.failOn = 0
	require.NoError(t, c.Initialize())
	assert.Equal(t, 2, f.calls[getDataAll])
	assert.Len(t, c.Entries(), 2)
}

func TestController_Initialize_MalformedRules(t *testing.T) {
	tests := []struct {
		name  string
		rules []byte
	}{
		{"RuleWithoutArDo", allArDo(tlv.Encode(TagRefArDO, refDo(aidRef(testAID))))},
		{"BadHashLength", allArDo(refArDo(refDo(hashRef([]byte{1, 2, 3})), arDo(apduAlways())))},
		{"BadFilterLength", allArDo(refArDo(refDo(hashRef(nil)), arDo(tlv.Hex("D0 03 00 A4 04"))))},
		{"WrongTopLevel", tlv.Encode(TagResponseRefreshTag, tagV1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeARA(tagV1, tt.rules)
			c := NewController(f, nil)

			err := c.Initialize()
			var ace *AccessControlError
			require.ErrorAs(t, err, &ace)
			assert.Empty(t, c.Entries())
			assert.Nil(t, c.RefreshTag())
		})
	}
}

func TestController_Options(t *testing.T) {
	customAID := tlv.Hex("A00000015141434C01")
	f := newFakeARA(tagV1, sampleRules())
	c := NewController(f, nil, WithAID(customAID), WithMaxChunk(32))

	// The fake only answers the standard ARA-M AID.
	require.ErrorIs(t, c.Initialize(), ErrMissingResource)

	c = NewController(f, nil, WithMaxChunk(32))
	require.NoError(t, c.Initialize())
	assert.Greater(t, f.calls[getDataNext], 0, "small chunks force paging")
}

func TestController_SharedCache(t *testing.T) {
	cache := NewAccessRuleCache()
	f := newFakeARA(tagV1, sampleRules())
	require.NoError(t, NewController(f, cache).Initialize())

	assert.Equal(t, 2, cache.Len())
	assert.True(t, cache.IsRefreshTagEqual(tagV1))
}
