// Package weaver implements the Weaver slot protocol: a card applet storing
// 16-byte values behind 16-byte keys, with per-slot throttling of wrong-key
// reads.
//
// Applet is the card side and answers raw APDUs; Client is the host side and
// works over any iso7816.Transmitter, including an Applet:
//
//	slots, _ := weaver.NewCoreSlots(weaver.DefaultNumSlots)
//	client := weaver.NewClient(weaver.NewApplet(slots))
//	_ = client.Write(1, key, value)
//	res, _ := client.Read(1, key) // res.Status == weaver.READ_SUCCESS
package weaver
