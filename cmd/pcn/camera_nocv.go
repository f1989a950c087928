//go:build !withcv

package main

import (
	"fmt"

	"github.com/banshee-data/passenger.counter/internal/config"
	"github.com/banshee-data/passenger.counter/internal/vision"
)

func openCameraStream(spec deviceSpec, _ *config.Live, _ vision.Displays, _ bool, _ string) (streamSetup, error) {
	return streamSetup{}, fmt.Errorf("camera %s: built without OpenCV, rebuild with -tags withcv or run with -dev", spec.Name)
}
