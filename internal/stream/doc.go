// Package stream drives one counting engine per video stream.
//
// A Runner pulls detections from a Source one frame at a time, feeds
// them through its own counting.Engine with the calibration values
// current at that frame, publishes an immutable snapshot, and fans the
// result out to Sinks (persistence, live viewers, displays, overlay).
// A Manager runs several Runners side by side; they share nothing but
// the read-only calibration holder.
package stream
