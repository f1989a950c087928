package main

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/passenger.counter/internal/replay"
	"github.com/banshee-data/passenger.counter/internal/security"
	"github.com/banshee-data/passenger.counter/internal/stream"
)

//go:embed fixtures/two_walkers.jsonl
var defaultFixture []byte

// streamSetup is one stream before it is handed to a runner.
type streamSetup struct {
	name    string
	source  stream.Source
	sinks   []stream.Sink
	seedFPS float64
}

// devStreams replays detection recordings instead of opening cameras.
// With no paths the built-in fixture is used.
func devStreams(paths []string, opts replay.Options) ([]streamSetup, error) {
	if len(paths) == 0 {
		opts.Loop = false
		src := replay.NewSource(bytes.NewReader(defaultFixture), opts)
		return []streamSetup{{name: "dev", source: src}}, nil
	}

	var setups []streamSetup
	seen := make(map[string]bool)
	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if seen[name] {
			closeSetups(setups)
			return nil, fmt.Errorf("fixtures %s: duplicate stream name %q", path, name)
		}
		seen[name] = true
		src, err := replay.Open(path, opts)
		if err != nil {
			closeSetups(setups)
			return nil, err
		}
		setups = append(setups, streamSetup{name: name, source: src})
	}
	return setups, nil
}

func closeSetups(setups []streamSetup) {
	for _, s := range setups {
		s.source.Close()
	}
}

// recordStreams adds a recorder sink to every stream, writing
// <dir>/<stream>.jsonl so a session can be replayed later with -dev
// -fixtures. The returned closers flush the files and must run after
// the streams have stopped.
func recordStreams(dir string, setups []streamSetup) ([]io.Closer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recording dir: %w", err)
	}
	var recorders []io.Closer
	for i, s := range setups {
		f, err := createRecording(dir, s.name)
		if err != nil {
			for _, r := range recorders {
				r.Close()
			}
			return nil, err
		}
		rec := replay.NewRecorder(f)
		recorders = append(recorders, rec)
		setups[i].sinks = append(setups[i].sinks, rec)
	}
	return recorders, nil
}

func createRecording(dir, name string) (*os.File, error) {
	path, err := security.JoinWithin(dir, name, ".jsonl")
	if err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}
	return f, nil
}
