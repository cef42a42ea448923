package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// DeviceInfo identifies the system default output device as the platform
// reports it. Count is the total number of output devices, used to notice
// devices appearing or vanishing even when the default name is unchanged.
type DeviceInfo struct {
	ID    int
	Name  string
	Count int
}

// QueryFunc asks the platform for the current default output device.
type QueryFunc func(ctx context.Context) (DeviceInfo, error)

var errUnsupportedPlatform = errors.New("no platform device query available")

// PlatformQuery returns the best-effort default-device query for this OS.
// Platforms without one get a query that always errors; the monitor treats
// any error as "no change detected".
func PlatformQuery() QueryFunc {
	switch runtime.GOOS {
	case "darwin":
		return queryDarwin
	case "linux":
		return queryLinux
	default:
		return func(ctx context.Context) (DeviceInfo, error) {
			return DeviceInfo{}, errUnsupportedPlatform
		}
	}
}

func queryDarwin(ctx context.Context) (DeviceInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "system_profiler", "SPAudioDataType", "-json").Output()
	if err != nil {
		return DeviceInfo{}, err
	}

	var payload struct {
		SPAudioDataType []struct {
			Items []struct {
				Name          string `json:"_name"`
				DefaultOutput string `json:"coreaudio_default_audio_output_device"`
			} `json:"_items"`
		} `json:"SPAudioDataType"`
	}
	if err := json.Unmarshal(out, &payload); err != nil {
		return DeviceInfo{}, err
	}

	info := DeviceInfo{ID: -1}
	for _, group := range payload.SPAudioDataType {
		for _, dev := range group.Items {
			if dev.DefaultOutput == "spaudio_yes" && info.Name == "" {
				info.ID = info.Count
				info.Name = dev.Name
			}
			info.Count++
		}
	}
	if info.Name == "" {
		return DeviceInfo{}, errors.New("no default output device reported")
	}
	return info, nil
}

func queryLinux(ctx context.Context) (DeviceInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	name, err := exec.CommandContext(ctx, "pactl", "get-default-sink").Output()
	if err != nil {
		return DeviceInfo{}, err
	}
	sinks, err := exec.CommandContext(ctx, "pactl", "list", "short", "sinks").Output()
	if err != nil {
		return DeviceInfo{}, err
	}

	count := 0
	for _, line := range bytes.Split(sinks, []byte("\n")) {
		if len(bytes.TrimSpace(line)) > 0 {
			count++
		}
	}
	return DeviceInfo{ID: 0, Name: strings.TrimSpace(string(name)), Count: count}, nil
}
