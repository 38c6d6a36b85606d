// Package convert turns color and contour sentences into device output.
//
// The serial flavor is a flat CommandStream: for each frame, one Actuate per node and
// then exactly one Pause for the frame's duration, even when the frame has no nodes.
//
//	{"hello":[{"duration":100,"frame_nodes":[{"node_index":[1,2],"intensity":50}]}]}
//	-> [L,1:50] [L,2:50] pause(100ms)
//
// The vendor flavor is a Pattern: one KeyFrame per node with a 20-slot weight vector,
// sorted stably by the frame's "order" field (traversal position when absent).
// Keyframe timestamps are always 0.
//
// Color directives map R, G and B onto three configurable nodes, each scaled by
// round(clamp(channel)/255 * clamp(intensity)).
package convert
