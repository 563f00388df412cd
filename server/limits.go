package main

// Operational limits and defaults, named in one place.
const (
	// maxUsers caps published users. The user list includes the system
	// user, so the accept-time check reads count > maxUsers.
	maxUsers = 30

	// senderWorkers bounds the broadcast fanout pool.
	senderWorkers = 200

	defaultHost = "0.0.0.0"
	defaultPort = "50600"
)

// serverFullReply is written raw, unframed, to a connection rejected by
// the user cap.
const serverFullReply = "SERVER_FULL"
