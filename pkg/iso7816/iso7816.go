/*
Package iso7816 implements data structures and logic to interact with smart cards according to the ISO/IEC 7816 standard.

This package provides the fundamental building blocks for APDU (Application Protocol Data Unit) communication, including Command and Response structures, Status Word (SW) analysis, logical channel management and the command builders used by the higher level applet clients.

# Fundamentals

The communication with a smart card is strictly synchronous:
 1. The Host sends a Command APDU (Header + Optional Body).
 2. The Card processes it and returns a Response APDU (Optional Body + Trailer SW1/SW2).

Both directions are covered: CommandAPDU.Bytes and ParseResponseAPDU run on the
host, ParseCommandAPDU and ResponseAPDU.Bytes let a card-side applet be written
(and tested) in Go.

# Status Words

Every response ends with a 2-byte Status Word (SW).
  - 0x9000: Success (OK).
  - 0x61XX: Success, but response data is still available (XX bytes).
  - 0x6CXX: Error, wrong length expectation (XX is the correct length).
  - 0x6A88: Referenced data not found.
  - Other: Various error conditions.

# Errors

A transport failure surfaces as *TransmitError, distinct from any card answer.
A reply shorter than a status word yields ErrMalformedResponse.

# Usage Example: Reading a data object on a logical channel

	client := iso7816.NewClient(card)
	cls, _ := iso7816.NewClass(0x00)

	trace, err := client.Send(iso7816.OpenChannel(cls))
	if err != nil || !trace.IsSuccess() {
	    log.Fatal("cannot open channel")
	}
	channel := trace.Last().Response.Data[0]

	gp, _ := iso7816.NewClass(0x80)
	onChannel, _ := gp.OnChannel(channel)

	resp, err := client.Exchange(iso7816.NewGetDataCommand(onChannel, 0xDF20, 0xF0))
	if err == nil && resp.Status == iso7816.SW_NO_ERROR {
	    fmt.Printf("Refresh tag DO: %X\n", resp.Data)
	}
*/
package iso7816
