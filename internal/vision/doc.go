// Package vision is the OpenCV side of a counting stream: camera or
// video file capture, MOG2 blob detection, the annotated preview windows
// with calibration sliders, and MJPG recording.
//
// The capture and rendering code needs OpenCV and is only built with
// the withcv tag. Labels, layout and the calibration slider table are
// plain Go and always available.
package vision
