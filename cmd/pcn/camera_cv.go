//go:build withcv

package main

import (
	"github.com/banshee-data/passenger.counter/internal/config"
	"github.com/banshee-data/passenger.counter/internal/stream"
	"github.com/banshee-data/passenger.counter/internal/vision"
)

func openCameraStream(spec deviceSpec, live *config.Live, displays vision.Displays, calibrate bool, videoDir string) (streamSetup, error) {
	cam, err := vision.OpenCamera(vision.CameraConfig{
		Name:      spec.Name,
		Device:    spec.Device,
		Params:    live,
		Displays:  displays,
		Calibrate: calibrate,
		VideoDir:  videoDir,
	})
	if err != nil {
		return streamSetup{}, err
	}
	return streamSetup{
		name:    spec.Name,
		source:  cam,
		sinks:   []stream.Sink{cam},
		seedFPS: cam.FPS(),
	}, nil
}
