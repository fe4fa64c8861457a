package gpac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChannelAccess(t *testing.T) {
	filter := []byte{0x00, 0xA4, 0x04, 0x00, 0xFF, 0xFF, 0xFF, 0xFF}

	tests := []struct {
		name       string
		ar         ArDO
		access     Access
		apdu       Access
		nfc        Access
		useFilter  bool
		numFilters int
	}{
		{"ApduAlways", ArDO{APDU: []byte{0x01}}, AccessAllowed, AccessAllowed, AccessAllowed, false, 0},
		{"ApduNever", ArDO{APDU: []byte{0x00}}, AccessDenied, AccessDenied, AccessDenied, false, 0},
		{"ApduNeverNfcAlways", ArDO{APDU: []byte{0x00}, NFC: []byte{0x01}}, AccessDenied, AccessDenied, AccessAllowed, false, 0},
		{"Filters", ArDO{APDU: append(append([]byte{}, filter...), filter...)}, AccessAllowed, AccessAllowed, AccessAllowed, true, 2},
		{"NfcOnly", ArDO{NFC: []byte{0x01}}, AccessUndefined, AccessUndefined, AccessAllowed, false, 0},
		{"PermissionsOnly", ArDO{Permissions: 0x10}, AccessUndefined, AccessUndefined, AccessUndefined, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ca, err := NewChannelAccess(&tt.ar)
			require.NoError(t, err)
			assert.Equal(t, tt.access, ca.Access, "access")
			assert.Equal(t, tt.apdu, ca.APDUAccess, "apdu")
			assert.Equal(t, tt.nfc, ca.NFCAccess, "nfc")
			assert.Equal(t, tt.useFilter, ca.UseFilter)
			assert.Len(t, ca.APDUFilters, tt.numFilters)
			assert.Equal(t, tt.ar.Permissions, ca.Permissions)
		})
	}
}

func TestNewChannelAccess_Invalid(t *testing.T) {
	for name, ar := range map[string]ArDO{
		"Empty":        {},
		"ApduLength":   {APDU: []byte{0x01, 0x02}},
		"FilterLength": {APDU: make([]byte, 12)},
		"NfcLength":    {NFC: []byte{0x01, 0x01}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewChannelAccess(&ar)
			assert.Error(t, err)
		})
	}
}

func TestAPDUFilter_Matches(t *testing.T) {
	f := APDUFilter{Header: [4]byte{0x80, 0xCA, 0x00, 0x00}, Mask: [4]byte{0xFC, 0xFF, 0x00, 0x00}}

	assert.True(t, f.Matches([]byte{0x80, 0xCA, 0xFF, 0x40, 0x00}))
	assert.True(t, f.Matches([]byte{0x81, 0xCA, 0xDF, 0x20}), "channel bits are masked")
	assert.False(t, f.Matches([]byte{0x80, 0xCB, 0x00, 0x00}))
	assert.False(t, f.Matches([]byte{0x80, 0xCA}), "short command")
	assert.Equal(t, "80CA0000/FCFF0000", f.String())
}

func TestChannelAccess_Verdicts(t *testing.T) {
	allowed := AllowedChannelAccess("trusted")
	assert.True(t, allowed.IsAPDUAllowed([]byte{0x00, 0xB0, 0x00, 0x00}))
	assert.True(t, allowed.IsNFCAllowed())

	denied := DeniedChannelAccess("nope")
	assert.False(t, denied.IsAPDUAllowed([]byte{0x00, 0xB0, 0x00, 0x00}))
	assert.False(t, denied.IsNFCAllowed())
	assert.False(t, denied.HasPermission(0))
	assert.Equal(t, `access=DENIED apdu=DENIED nfc=DENIED reason="nope"`, denied.String())
}

func TestChannelAccess_MergeUndefined(t *testing.T) {
	ca, err := NewChannelAccess(&ArDO{NFC: []byte{0x01}})
	require.NoError(t, err)

	other, err := NewChannelAccess(&ArDO{APDU: []byte{0x01}})
	require.NoError(t, err)
	other.UseFilter = true
	other.APDUFilters = []APDUFilter{{Header: [4]byte{0x00, 0xA4}, Mask: [4]byte{0xFF, 0xFF}}}

	ca.Merge(other)
	assert.Equal(t, AccessAllowed, ca.Access)
	assert.Equal(t, AccessAllowed, ca.APDUAccess)
	assert.True(t, ca.UseFilter, "filters of the first APDU verdict are taken over")
	assert.Len(t, ca.APDUFilters, 1)

	other.APDUFilters[0].Header[0] = 0xFF
	assert.Equal(t, byte(0x00), ca.APDUFilters[0].Header[0], "filters are copied")
}

func TestAccess_String(t *testing.T) {
	assert.Equal(t, "UNDEFINED", AccessUndefined.String())
	assert.Equal(t, "ALLOWED", AccessAllowed.String())
	assert.Equal(t, "DENIED", AccessDenied.String())
	assert.Equal(t, "Access(7)", Access(7).String())
}
