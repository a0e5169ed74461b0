// internal/transport/messages.go
package transport

import "github.com/enaribe/startup-ludo/service/internal/auth"

// Join is issued once a peer's hello carried a valid token.
type Join struct {
	Conn    Conn
	Claims  *auth.Claims
	LastSeq uint64
	Reply   chan<- JoinResult
}

type JoinResult struct {
	Seat uint8
	Err  error
}

// Inbound carries one raw frame from a joined peer.
type Inbound struct {
	Seat uint8
	Conn Conn
	Data []byte
}

// Leave is issued when a peer's connection ends.
type Leave struct {
	Seat uint8
	Conn Conn
}

// takeover fires when a dropped seat's reconnect grace runs out.
type takeover struct {
	Seat uint8
	Gen  uint64
}
