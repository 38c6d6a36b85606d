// Package sentence decodes inbound stream messages and classifies them.
//
// Payloads are decoded with Decode, which keeps object keys in arrival order so that
// contour words convert in the order the server sent them. Parse then maps the decoded
// value onto one variant of the closed Sentence set, checking in this order:
//
//  1. the literal text "__ping__" (Heartbeat)
//  2. an object with "type" and "message" (ServerEnvelope)
//  3. an object with "cmd" (ControlCommand)
//  4. an object with "color" (ColorDirective)
//  5. a contour shape: an integer pause, a list holding a frame, or an object of
//     frames, frame lists and integer pauses (ContourDirective)
//  6. anything else (Unrecognized)
//
// Only text that is not UTF-8 or not JSON is an error (errors.ErrDecode).
package sentence
