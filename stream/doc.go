// Package stream keeps the inbound WebSocket connection alive and routes its messages.
//
// # Loop
//
// Loop moves through Disconnected, Connecting and Connected, and ends in Shutdown when
// its context is cancelled. While connected it sends a protocol ping every
// PingInterval and expects traffic (or a pong) within PingInterval+PingTimeout;
// otherwise the connection counts as lost. Lost connections and failed dials wait out
// an exponential backoff (2s doubling up to 30s by default) before the next attempt.
// A successful connect resets the backoff and gets a fresh session id for logs.
//
// Messages are read and processed one at a time, so serial pacing applies
// back-pressure to the connection. Binary frames are accepted when they hold UTF-8
// text.
//
// # Router
//
// Router classifies each message and hands it on:
//
//	__ping__            -> reply __pong__
//	{"type","message"}  -> log
//	{"cmd": ...}        -> mode resolver, reply on the connection
//	color / contour     -> dispatcher
//	anything else       -> log and drop
//
// A panic while routing is recovered and the message dropped.
package stream
