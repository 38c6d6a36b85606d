// Package channel implements the device channels converted output is written to.
//
// Serial drives an ASCII actuator bus. Each actuate command is rendered as
// "[L,<node>:<intensity>]" and written in packets of at most ChunkSize bytes,
// flushed and paced by a rate limiter so USB CDC adapters are not overrun. A pause
// waits for the frame duration and then silences every actuator with StopCommand.
// The port is opened lazily and dropped on any write failure; the next Send reopens it.
//
// Vendor hands a keyframe pattern to a pattern-playback engine behind the SDK
// interface. Every pattern is validated against an embedded JSON schema, loaded,
// played and unloaded again. LoopbackSDK is an in-process engine used for dry runs
// and tests.
//
// Channels are not safe for concurrent Send calls from several dispatchers; the
// dispatcher serializes access.
package channel
