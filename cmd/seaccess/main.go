// Command seaccess reads Secure Element access rules and drives the Weaver
// applet through a PC/SC reader.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
