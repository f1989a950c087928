// Package counting owns the passenger tracking-and-counting engine.
//
// Responsibilities: associating per-frame blob detections with
// persistent passenger tracks (first match within a pixel window),
// maintaining track trajectories and ages, counting midline crossings
// in both directions, and evicting stale tracks.
// Key types: Engine, PassengerTrack, Detection, CrossingEvent.
//
// Dependency rule: no image processing, rendering, SQL or network code
// is allowed in this package. Detections arrive as plain values and the
// engine returns plain values; collaborators decide how to draw or
// persist them.
package counting
