/*
Package gpac retrieves and caches Secure Element access rules following the
GlobalPlatform Secure Element Access Control (GPAC) standard.

The Access Rule Application Master (ARA-M) on the card exposes its rule set
through GET DATA. The Controller opens a channel to it, compares the refresh
tag with the cached one, and only when it changed reads the whole rule set
again, merging every REF-AR-DO into the AccessRuleCache.

# Usage

	controller := gpac.NewController(terminal, nil)
	if err := controller.Initialize(); err != nil {
	    // rules unavailable: deny everything
	    return gpac.DeniedChannelAccess(err.Error())
	}

	access := controller.ChannelAccess(appletAID, certificateHash)
	if access.IsAPDUAllowed(command) {
	    // forward the command
	}

Any error from Initialize means "no rules available". Transport errors
(*iso7816.TransmitError) are returned as they are; protocol and parsing
failures are *AccessControlError; a missing ARA-M is ErrMissingResource.
*/
package gpac
