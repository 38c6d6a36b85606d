// Package errors provides the error classification used by every hapticbridge component.
//
// # Overview
//
// Errors fall into three classes: Transient (temporary, retryable), Invalid (bad input,
// drop and continue) and Fatal (unrecoverable, stop the process). Components decide on
// retries and drops from the class rather than from error strings.
//
// # Taxonomy
//
// The bridge's own failure modes are sentinel values so callers can match them with Is:
//
//   - ErrDecode: inbound message is not UTF-8 text or not JSON
//   - ErrUnsupportedShape: top-level payload type cannot be converted
//   - ErrFieldWarning: one item in a payload was skipped
//   - ErrUnknownCommand: control command or mode value not recognized
//   - ErrChannelUnavailable: device channel not connected, message dropped
//   - ErrTransport: serial write/flush or vendor SDK call failed
//   - ErrConnectionLost, ErrConnectionTimeout: stream connection failures
//
// Kind maps any error onto a short taxonomy name for logs and metric labels.
//
// # Wrapping
//
// Wrap adds component context following "component.method: action failed: %w":
//
//	if err := sink.Write(packet); err != nil {
//	    return errors.WrapTransient(errors.ErrTransport, "SerialChannel", "Send", "write chunk")
//	}
//
// WrapTransient, WrapInvalid and WrapFatal do the same and attach a class. The wrapped
// chain stays intact, so Is and As see both the sentinel and the class.
//
// # Classification
//
//	switch errors.Classify(err) {
//	case errors.ErrorTransient:
//	    // back off and retry
//	case errors.ErrorInvalid:
//	    // log and drop the message
//	case errors.ErrorFatal:
//	    // stop
//	}
//
// Only context cancellation ends the stream loop. Every other error is either retried
// (transient) or logged and dropped (invalid).
package errors
