package relay

// Package relay implements the socksfwd listener and per-connection sessions.
//
// Every accepted connection is handed to its own session, which dials the
// fixed target through the configured Dialer and then copies bytes in both
// directions until either side closes. It also holds the shared connection
// plumbing: keepalive listeners and bidirectional copy.
