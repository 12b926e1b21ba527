// Package audioinfo reads descriptive metadata from audio files.
package audioinfo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
)

// ErrUnsupportedFormat is returned when the container cannot be decoded.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Info describes an audio file on disk.
type Info struct {
	SizeBytes       int64
	DurationSeconds float64
	SampleRate      int
	Channels        int
	BitDepth        int
}

// Probe stats path and, for WAV files, decodes the header to obtain the
// duration. Other containers return the size together with
// ErrUnsupportedFormat so callers can keep the size.
func Probe(path string) (Info, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return Info{}, err
	}
	info := Info{SizeBytes: stat.Size()}
	if !strings.EqualFold(filepath.Ext(path), ".wav") {
		return info, ErrUnsupportedFormat
	}

	f, err := os.Open(path)
	if err != nil {
		return info, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return info, fmt.Errorf("%s: %w", filepath.Base(path), ErrUnsupportedFormat)
	}
	duration, err := dec.Duration()
	if err != nil {
		return info, fmt.Errorf("read wav duration: %w", err)
	}
	info.DurationSeconds = duration.Seconds()
	info.SampleRate = int(dec.SampleRate)
	info.Channels = int(dec.NumChans)
	info.BitDepth = int(dec.BitDepth)
	return info, nil
}

// Duration is a convenience wrapper returning only the seconds. Errors yield 0.
func Duration(path string) float64 {
	info, err := Probe(path)
	if err != nil {
		return 0
	}
	return info.DurationSeconds
}
