package counting

import "time"

// testParams returns small, easy-to-reason-about calibration values.
func testParams() Params {
	return Params{
		MinArea:                100,
		XNear:                  40,
		YNear:                  90,
		MaxPassengerAgeSeconds: 2,
		OnePersonMaxArea:       1000,
		TwoPersonMaxArea:       2000,
	}
}

func det(x, y, area float64) Detection {
	return Detection{
		Centroid: Point{X: x, Y: y},
		Area:     area,
		Box:      Rect{MinX: x - 10, MinY: y - 10, MaxX: x + 10, MaxY: y + 10},
	}
}

func frame(height int, fps float64, dets ...Detection) Frame {
	return Frame{
		Timestamp:  time.Unix(1700000000, 0),
		Width:      640,
		Height:     height,
		FPS:        fps,
		Detections: dets,
	}
}
