// Package dispatch routes converted messages to device channels.
//
// A Resolver holds the output Mode (serial, vendor, both, auto or none) and answers
// the set_mode/get_mode control commands, with set_output/get_output as aliases.
// Auto resolves per message: vendor when the engine is connected, else serial when
// a port is configured, else none.
//
// A Dispatcher converts each sentence once per selected channel flavor and sends it
// to the channels in order, serial first. A failed channel is logged and the next
// channel still runs; an unavailable channel drops the message. Every outcome is
// collected in a Result and handed to an optional Reporter.
package dispatch
