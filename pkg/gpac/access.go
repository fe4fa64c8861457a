package gpac

import (
	"fmt"
	"strings"
)

// Access is a verdict for one kind of access.
type Access int

const (
	AccessUndefined Access = iota
	AccessAllowed
	AccessDenied
)

func (a Access) String() string {
	switch a {
	case AccessUndefined:
		return "UNDEFINED"
	case AccessAllowed:
		return "ALLOWED"
	case AccessDenied:
		return "DENIED"
	default:
		return fmt.Sprintf("Access(%d)", int(a))
	}
}

// restrict returns the most restrictive of two verdicts: DENIED > ALLOWED > UNDEFINED.
func restrict(a, b Access) Access {
	if b > a {
		return b
	}
	return a
}

// APDUFilter allows a command when (CLA INS P1 P2) & Mask == Header.
type APDUFilter struct {
	Header [4]byte
	Mask   [4]byte
}

// Matches evaluates the filter against the header of a raw C-APDU.
func (f APDUFilter) Matches(cmd []byte) bool {
	if len(cmd) < 4 {
		return false
	}
	for i := 0; i < 4; i++ {
		if cmd[i]&f.Mask[i] != f.Header[i] {
			return false
		}
	}
	return true
}

func (f APDUFilter) String() string {
	return fmt.Sprintf("%X/%X", f.Header[:], f.Mask[:])
}

// ChannelAccess is the effective access granted to a channel.
type ChannelAccess struct {
	Access      Access
	APDUAccess  Access
	NFCAccess   Access
	APDUFilters []APDUFilter // only meaningful when UseFilter is set
	UseFilter   bool
	Permissions uint64
	Reason      string
}

// AllowedChannelAccess grants everything. It is used for trusted channels.
func AllowedChannelAccess(reason string) *ChannelAccess {
	return &ChannelAccess{
		Access:     AccessAllowed,
		APDUAccess: AccessAllowed,
		NFCAccess:  AccessAllowed,
		Reason:     reason,
	}
}

// DeniedChannelAccess grants nothing.
func DeniedChannelAccess(reason string) *ChannelAccess {
	return &ChannelAccess{
		Access:     AccessDenied,
		APDUAccess: AccessDenied,
		NFCAccess:  AccessDenied,
		Reason:     reason,
	}
}

// NewChannelAccess maps an AR-DO to the access it grants.
func NewChannelAccess(ar *ArDO) (*ChannelAccess, error) {
	if err := ar.validate(); err != nil {
		return nil, err
	}

	ca := &ChannelAccess{Permissions: ar.Permissions}

	switch {
	case ar.APDU == nil:
		ca.APDUAccess = AccessUndefined
	case len(ar.APDU) == 1 && ar.APDU[0] == 0x01:
		ca.APDUAccess = AccessAllowed
	case len(ar.APDU) == 1:
		ca.APDUAccess = AccessDenied
		ca.Reason = "APDU access denied by rule"
	default:
		ca.APDUAccess = AccessAllowed
		ca.UseFilter = true
		for off := 0; off < len(ar.APDU); off += apduFilterLength {
			var f APDUFilter
			copy(f.Header[:], ar.APDU[off:off+4])
			copy(f.Mask[:], ar.APDU[off+4:off+8])
			ca.APDUFilters = append(ca.APDUFilters, f)
		}
	}

	switch {
	case ar.NFC == nil && ca.APDUAccess == AccessUndefined:
		ca.NFCAccess = AccessUndefined
	case ar.NFC == nil:
		// NFC events follow the APDU verdict.
		ca.NFCAccess = ca.APDUAccess
	case ar.NFC[0] == 0x01:
		ca.NFCAccess = AccessAllowed
	default:
		ca.NFCAccess = AccessDenied
	}

	// The overall verdict follows APDU access. A rule without APDU-AR-DO
	// leaves it undefined so that merging it cannot revoke another grant.
	ca.Access = ca.APDUAccess

	return ca, nil
}

// Clone returns a deep copy.
func (ca *ChannelAccess) Clone() *ChannelAccess {
	c := *ca
	c.APDUFilters = append([]APDUFilter(nil), ca.APDUFilters...)
	return &c
}

// Merge folds another rule for the same reference into ca.
//
// Verdicts: DENIED > ALLOWED > UNDEFINED, field by field.
// APDU filters: when both rules allow APDUs, filtered access restricts
// unfiltered access and two filter lists are unioned. Permission masks are ORed.
func (ca *ChannelAccess) Merge(other *ChannelAccess) {
	if other.Access == AccessDenied && ca.Access != AccessDenied {
		ca.Reason = other.Reason
	}
	ca.Access = restrict(ca.Access, other.Access)
	ca.NFCAccess = restrict(ca.NFCAccess, other.NFCAccess)

	apdu := restrict(ca.APDUAccess, other.APDUAccess)
	switch {
	case apdu != AccessAllowed:
		ca.UseFilter = false
		ca.APDUFilters = nil
	case ca.APDUAccess == AccessAllowed && other.APDUAccess == AccessAllowed:
		switch {
		case ca.UseFilter && other.UseFilter:
			ca.APDUFilters = appendFilters(ca.APDUFilters, other.APDUFilters)
		case other.UseFilter:
			ca.UseFilter = true
			ca.APDUFilters = append([]APDUFilter(nil), other.APDUFilters...)
		}
	case other.APDUAccess == AccessAllowed:
		// ca had no APDU verdict; take the other rule's filters.
		ca.UseFilter = other.UseFilter
		ca.APDUFilters = append([]APDUFilter(nil), other.APDUFilters...)
	}
	ca.APDUAccess = apdu

	ca.Permissions |= other.Permissions
}

func appendFilters(dst, src []APDUFilter) []APDUFilter {
	for _, f := range src {
		dup := false
		for _, g := range dst {
			if f == g {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, f)
		}
	}
	return dst
}

// IsAPDUAllowed reports whether a raw C-APDU may be sent on the channel.
func (ca *ChannelAccess) IsAPDUAllowed(cmd []byte) bool {
	if ca.Access != AccessAllowed || ca.APDUAccess != AccessAllowed {
		return false
	}
	if !ca.UseFilter {
		return true
	}
	for _, f := range ca.APDUFilters {
		if f.Matches(cmd) {
			return true
		}
	}
	return false
}

// IsNFCAllowed reports whether NFC transaction events may be forwarded.
func (ca *ChannelAccess) IsNFCAllowed() bool {
	return ca.NFCAccess == AccessAllowed
}

// HasPermission reports whether every bit of mask is granted.
func (ca *ChannelAccess) HasPermission(mask uint64) bool {
	return ca.Access == AccessAllowed && ca.Permissions&mask == mask
}

func (ca *ChannelAccess) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "access=%s apdu=%s nfc=%s", ca.Access, ca.APDUAccess, ca.NFCAccess)
	if ca.UseFilter {
		filters := make([]string, len(ca.APDUFilters))
		for i, f := range ca.APDUFilters {
			filters[i] = f.String()
		}
		fmt.Fprintf(&sb, " filters=[%s]", strings.Join(filters, " "))
	}
	if ca.Permissions != 0 {
		fmt.Fprintf(&sb, " permissions=%016X", ca.Permissions)
	}
	if ca.Reason != "" {
		fmt.Fprintf(&sb, " reason=%q", ca.Reason)
	}
	return sb.String()
}
