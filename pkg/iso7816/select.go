package iso7816

import (
	"fmt"
)

// SELECT COMMAND LOGIC (ISO 7816-4):
// The SELECT command (INS 'A4') opens a file or an application.
//
// P1 (Selection Method): how the target is named (file ID or DF name / AID).
//
// P2 (Selection Control):
// - Bits 4-3: Response Type (FCI, FCP, FMD, or No Data).
// - Bits 2-1: Occurrence (First, Last, Next, Previous).
//
// Applications on a Secure Element are always selected by AID. Once a logical
// channel is bound to an applet, a further SELECT by name on that channel would
// switch applets behind the access rules, so IsSelectByName lets the terminal
// spot it on raw commands.

// SelectionMethod defines how the file is targeted (P1).
type SelectionMethod byte

const (
	SelectByFileID SelectionMethod = 0x00
	SelectByDFName SelectionMethod = 0x04 // Select by AID
)

func (s SelectionMethod) String() string {
	switch s {
	case SelectByFileID:
		return "Select by File ID"
	case SelectByDFName:
		return "Select by DF Name (AID)"
	default:
		return fmt.Sprintf("Unknown Method (0x%02X)", byte(s))
	}
}

// FileOccurrence defines which instance of the file to select (Bits 1-2 of P2).
type FileOccurrence byte

const (
	FirstOrOnlyOccurrence FileOccurrence = 0b0000_00_00
	LastOccurrence        FileOccurrence = 0b0000_00_01
	NextOccurrence        FileOccurrence = 0b0000_00_10
	PreviousOccurrence    FileOccurrence = 0b0000_00_11
)

// SelectionControl defines what data to return (Bits 3-4 of P2).
type SelectionControl byte

const (
	ReturnFCI    SelectionControl = 0b0000_00_00
	ReturnFCP    SelectionControl = 0b0000_01_00
	ReturnFMD    SelectionControl = 0b0000_10_00
	ReturnNoData SelectionControl = 0b0000_11_00
)

// NewSelectCommand creates a generic SELECT command.
func NewSelectCommand(
	cla Class,
	method SelectionMethod,
	occurrence FileOccurrence,
	ctrl SelectionControl,
	data []byte,
) *CommandAPDU {
	p2 := byte(ctrl) | byte(occurrence)

	// T=0: with a data field we cannot send Le as well; the card answers
	// '61 XX' and the Client fetches the rest.
	ne := 0
	if len(data) == 0 && ctrl != ReturnNoData {
		ne = MaxShortLe
	}

	return NewCommandAPDU(cla, MustInstruction(INS_SELECT), byte(method), p2, data, ne)
}

// SelectByAID selects the first or only application matching aid.
func SelectByAID(cla Class, aid []byte) *CommandAPDU {
	return NewSelectCommand(cla, SelectByDFName, FirstOrOnlyOccurrence, ReturnFCI, aid)
}

// SelectNextByAID selects the next application matching a partial aid, after
// a previous SelectByAID on the same channel.
func SelectNextByAID(cla Class, aid []byte) *CommandAPDU {
	return NewSelectCommand(cla, SelectByDFName, NextOccurrence, ReturnFCI, aid)
}

// IsSelectByName reports whether raw is a SELECT by DF name, whatever its
// class and P2.
func IsSelectByName(raw []byte) bool {
	return len(raw) >= 4 && InsCode(raw[1]) == INS_SELECT && SelectionMethod(raw[2]) == SelectByDFName
}
