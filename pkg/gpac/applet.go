package gpac

import (
	"fmt"

	"github.com/gregLibert/secure-element/pkg/iso7816"
	"github.com/gregLibert/secure-element/pkg/tlv"
)

// ACCESS RULE APPLET (ARA-M) PROTOCOL:
//
//	GET DATA (all)          80 CA FF 40 Le
//	GET DATA (next)         80 CA FF 60 Le
//	GET DATA (refresh tag)  80 CA DF 20 Le
//
// The applet answers at most Le bytes per command. The first "all" chunk
// starts with the Response-ALL-AR-DO header, which gives the overall size;
// the rest is fetched with "next" until that size is reached.
// '6A88' on the first "all" call means the applet holds no rules.

const (
	// DefaultMaxChunk caps Le for every GET DATA. 0x00 and 0xFF are avoided
	// because some devices mishandle them.
	DefaultMaxChunk = 0xF0

	// MaxChunkLimit is the largest accepted Le cap.
	MaxChunkLimit = 0xFE

	getDataAll        uint16 = 0xFF40
	getDataNext       uint16 = 0xFF60
	getDataRefreshTag uint16 = 0xDF20
	araClassByte      byte   = 0x80
)

// RuleSet is the outcome of reading all access rules.
type RuleSet struct {
	// Empty is set when the applet holds no rules at all.
	Empty bool
	// Raw is the complete Response-ALL-AR-DO when Empty is false.
	Raw []byte
}

// AccessRuleApplet is a client for the ARA-M applet on an open channel.
type AccessRuleApplet struct {
	client   *iso7816.Client
	cla      iso7816.Class
	maxChunk int
}

// NewAccessRuleApplet creates a client. maxChunk outside 1..MaxChunkLimit
// falls back to DefaultMaxChunk.
func NewAccessRuleApplet(channel iso7816.Transmitter, maxChunk int) *AccessRuleApplet {
	if maxChunk < 1 || maxChunk > MaxChunkLimit {
		maxChunk = DefaultMaxChunk
	}
	cla, _ := iso7816.NewClass(araClassByte)
	return &AccessRuleApplet{
		client:   iso7816.NewClient(channel),
		cla:      cla,
		maxChunk: maxChunk,
	}
}

// ReadRefreshTag returns the refresh tag currently reported by the applet.
func (a *AccessRuleApplet) ReadRefreshTag() ([]byte, error) {
	resp, err := a.client.Exchange(iso7816.NewGetDataCommand(a.cla, getDataRefreshTag, a.maxChunk))
	if err != nil {
		return nil, err
	}
	if resp.Status != iso7816.SW_NO_ERROR {
		return nil, statusError("GET DATA (refresh tag) failed", resp.Status)
	}

	do, err := DecodeResponse(resp.Data)
	if err != nil {
		return nil, wrapError("invalid refresh tag response", err)
	}
	tag, ok := do.(*RefreshTagDO)
	if !ok {
		return nil, &AccessControlError{Msg: fmt.Sprintf("unexpected data object %s for refresh tag", tlv.TagName(do.DOTag()))}
	}

	log().Debug("read refresh tag", "tag", fmt.Sprintf("%X", tag.RefreshTag))
	return tag.RefreshTag, nil
}

// ReadAllAccessRules fetches the complete rule set, paging through the
// applet's per-command size limit.
func (a *AccessRuleApplet) ReadAllAccessRules() (RuleSet, error) {
	resp, err := a.client.Exchange(iso7816.NewGetDataCommand(a.cla, getDataAll, a.maxChunk))
	if err != nil {
		return RuleSet{}, err
	}

	switch resp.Status {
	case iso7816.SW_NO_ERROR:
	case iso7816.SW_ERR_REF_DATA_NOT_FOUND:
		log().Debug("access rule applet holds no rules")
		return RuleSet{Empty: true}, nil
	default:
		return RuleSet{}, statusError("GET DATA (all) failed", resp.Status)
	}

	header, err := tlv.DecodeHeader(resp.Data, 0)
	if err != nil {
		return RuleSet{}, wrapError("invalid rule set header", err)
	}
	overall := header.TotalLength()

	data := make([]byte, 0, overall)
	data = append(data, resp.Data...)

	next := iso7816.NewGetDataCommand(a.cla, getDataNext, a.maxChunk)
	for len(data) < overall {
		le := min(a.maxChunk, overall-len(data))

		resp, err := a.client.Exchange(next.WithNe(le))
		if err != nil {
			return RuleSet{}, err
		}
		if resp.Status != iso7816.SW_NO_ERROR {
			return RuleSet{}, statusError("GET DATA (next) failed", resp.Status)
		}
		if len(resp.Data) == 0 {
			return RuleSet{}, &AccessControlError{
				Msg: fmt.Sprintf("GET DATA (next) returned no data at %d of %d bytes", len(data), overall),
			}
		}

		data = append(data, resp.Data...)
		log().Debug("fetched access rule chunk", "received", len(data), "overall", overall)
	}

	if len(data) > overall {
		log().Debug("dropping bytes past the end of the rule set", "extra", len(data)-overall)
		data = data[:overall]
	}

	return RuleSet{Raw: data}, nil
}
