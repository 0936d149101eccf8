package model

import "fmt"

// TransportError reports a failed send or request to a switch, host or
// controller endpoint. It is never retried.
type TransportError struct {
	Target string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport to %s: %v", e.Target, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a malformed or incomplete packet or message.
type ProtocolError struct {
	Field  string
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Field == "" {
		return "protocol: " + e.Reason
	}
	return fmt.Sprintf("protocol: %s: %s", e.Field, e.Reason)
}

// ListenerFault reports a bind or receive failure of a background listener.
// It is fatal to that listener only.
type ListenerFault struct {
	Addr string
	Err  error
}

func (e *ListenerFault) Error() string {
	return fmt.Sprintf("listener %s: %v", e.Addr, e.Err)
}

func (e *ListenerFault) Unwrap() error { return e.Err }
