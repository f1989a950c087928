package main

import (
	"fmt"
	"strings"
)

// deviceSpec is one -device entry: an optional stream name and the
// capture device (index, file path or URL).
type deviceSpec struct {
	Name   string
	Device string
}

// deviceList collects repeated -device flags. Each value may hold a
// comma separated list of "name=device" or bare "device" entries.
type deviceList []deviceSpec

func (d *deviceList) String() string {
	if d == nil {
		return ""
	}
	parts := make([]string, len(*d))
	for i, s := range *d {
		parts[i] = s.Name + "=" + s.Device
	}
	return strings.Join(parts, ",")
}

func (d *deviceList) Set(value string) error {
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		spec := deviceSpec{Device: entry}
		if name, dev, ok := strings.Cut(entry, "="); ok {
			spec = deviceSpec{Name: strings.TrimSpace(name), Device: strings.TrimSpace(dev)}
		}
		if spec.Device == "" {
			return fmt.Errorf("device entry %q has no device", entry)
		}
		if spec.Name == "" {
			spec.Name = fmt.Sprintf("cam%d", len(*d))
		}
		for _, existing := range *d {
			if existing.Name == spec.Name {
				return fmt.Errorf("duplicate stream name %q", spec.Name)
			}
		}
		*d = append(*d, spec)
	}
	return nil
}

// splitList splits a comma separated flag value, dropping empty items.
func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// serverURL turns a listen address into a URL the CLI subcommands can
// call. A bare ":port" means localhost.
func serverURL(listen string) string {
	if strings.HasPrefix(listen, "http://") || strings.HasPrefix(listen, "https://") {
		return strings.TrimRight(listen, "/")
	}
	if strings.HasPrefix(listen, ":") {
		listen = "localhost" + listen
	}
	return "http://" + listen
}
