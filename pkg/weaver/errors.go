package weaver

import (
	"fmt"

	"github.com/gregLibert/secure-element/pkg/iso7816"
)

// StatusError is returned by Client when the applet rejects a command.
type StatusError struct {
	Op     string
	Status iso7816.StatusWord
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("weaver %s: %s", e.Op, e.Status.Verbose())
}

// IsInvalidSlot reports whether the applet rejected the slot id.
func (e *StatusError) IsInvalidSlot() bool {
	return e.Status == SW_INVALID_SLOT_ID
}
