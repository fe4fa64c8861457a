package gpac

import (
	"errors"
	"fmt"

	"github.com/gregLibert/secure-element/pkg/iso7816"
)

// ErrMissingResource is returned when the ARA-M applet cannot be reached on
// the Secure Element. It is fatal for the controller initialization.
var ErrMissingResource = errors.New("access rule applet not found")

// AccessControlError reports a protocol or parsing failure while retrieving
// access rules. Callers must treat it as "no rules available", never as "allow".
type AccessControlError struct {
	Msg    string
	Status iso7816.StatusWord // zero when no status word is involved
	Err    error
}

func (e *AccessControlError) Error() string {
	msg := "access control: " + e.Msg
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (SW %04X)", msg, uint16(e.Status))
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AccessControlError) Unwrap() error {
	return e.Err
}

func statusError(msg string, sw iso7816.StatusWord) *AccessControlError {
	return &AccessControlError{Msg: msg, Status: sw}
}

func wrapError(msg string, err error) *AccessControlError {
	return &AccessControlError{Msg: msg, Err: err}
}

// isTransportError reports whether err comes from the channel transport.
// Those errors are propagated unmodified.
func isTransportError(err error) bool {
	var te *iso7816.TransmitError
	return errors.As(err, &te)
}
