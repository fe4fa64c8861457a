package iso7816

import (
	"fmt"
	"log/slog"
	"strings"
)

// TRANSACTION:
// A Transaction represents the atomic unit of communication defined in ISO 7816-3:
// one Command APDU (C-APDU) sent by the terminal, followed by one Response APDU (R-APDU)
// sent back by the card.
//
// TRACE:
// A Trace is a chronological sequence of Transactions. It captures the full history of a
// logical operation. This is particularly important in ISO 7816-4 flows where a single
// logical intent (e.g., "Select File") may result in multiple physical transactions due
// to protocol mechanisms:
// 1. "61 XX" (Process Completed): The card has XX extra bytes. The terminal must send a GET RESPONSE.
// 2. "6C XX" (Wrong Length): The terminal must re-send the command with Le = XX.
//
// In these cases, the Trace contains the entire conversation, and IsSuccess() evaluates
// the final outcome. A Trace implements slog.LogValuer, so it can be passed to a logger
// as is.

// Transaction represents a completed Command-Response pair.
type Transaction struct {
	Command  *CommandAPDU
	Response *ResponseAPDU
}

// IsSuccess checks if the transaction ended with a successful status.
// It returns false if the response is missing.
func (t *Transaction) IsSuccess() bool {
	if t.Response == nil {
		return false
	}
	return t.Response.Status.IsSuccess()
}

// Trace is a sequence of transactions (Command-Response pairs).
// It represents the full history of a logical exchange (including 61xx/6Cxx retries).
type Trace []Transaction

// Last returns the final transaction of the trace.
// Returns nil if the trace is empty.
func (t Trace) Last() *Transaction {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// IsSuccess checks if the FINAL transaction in the trace was successful.
// This determines if the overall logical operation succeeded, regardless of
// intermediate warnings (like 61XX) in previous transactions.
func (t Trace) IsSuccess() bool {
	last := t.Last()
	if last == nil {
		return false
	}
	return last.IsSuccess()
}

// Response assembles the answer to the logical command: the data of the
// last transaction that was not a GET RESPONSE, followed by the data of every
// GET RESPONSE after it, with the final status word. A 6CXX retry restarts
// the assembly; '61XX' chains keep it going. Returns nil for an empty trace.
func (t Trace) Response() *ResponseAPDU {
	last := t.Last()
	if last == nil || last.Response == nil {
		return nil
	}

	start := 0
	for i := len(t) - 1; i >= 0; i-- {
		if cmd := t[i].Command; cmd == nil || cmd.Instruction.Raw != INS_GET_RESPONSE {
			start = i
			break
		}
	}
	if start == len(t)-1 {
		return last.Response
	}

	var data []byte
	for _, tx := range t[start:] {
		if tx.Response != nil {
			data = append(data, tx.Response.Data...)
		}
	}
	return &ResponseAPDU{Data: data, Status: last.Response.Status}
}

// Status returns the status word of the final transaction, or 0 when the
// trace holds no response.
func (t Trace) Status() StatusWord {
	last := t.Last()
	if last == nil || last.Response == nil {
		return 0
	}
	return last.Response.Status
}

// LogValue summarizes the trace: number of steps, the INS of the first
// command, the status word of every step and the final data length.
func (t Trace) LogValue() slog.Value {
	if len(t) == 0 {
		return slog.GroupValue(slog.Int("steps", 0))
	}

	sws := make([]string, 0, len(t))
	for _, tx := range t {
		if tx.Response == nil {
			sws = append(sws, "----")
			continue
		}
		sws = append(sws, fmt.Sprintf("%04X", uint16(tx.Response.Status)))
	}

	attrs := []slog.Attr{slog.Int("steps", len(t))}
	if t[0].Command != nil {
		attrs = append(attrs, slog.String("ins", fmt.Sprintf("%02X", byte(t[0].Command.Instruction.Raw))))
	}
	attrs = append(attrs, slog.String("sw", strings.Join(sws, " ")))
	if last := t.Last(); last.Response != nil {
		attrs = append(attrs, slog.Int("data", len(last.Response.Data)))
	}
	return slog.GroupValue(attrs...)
}
