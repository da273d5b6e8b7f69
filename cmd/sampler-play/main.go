// ABOUTME: Entry point for the sampler-play demo
// ABOUTME: Decodes a WAV or MP3 file and drives the playback engine
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"

	"github.com/varispeed/sampler-go/pkg/sampler"
	"github.com/varispeed/sampler-go/pkg/audio/voice"
)

var (
	file     = flag.String("file", "", "WAV or MP3 file to play")
	backend  = flag.String("backend", "oto", "Output backend: oto, malgo or portaudio")
	speed    = flag.Float64("speed", 1.0, "Playback speed factor (> 0)")
	volume   = flag.Float64("volume", 1.0, "Volume in [0, 1]")
	capacity = flag.Int("capacity", 3, "Device queue depth (queued backends)")
	blockMs  = flag.Int("block-ms", 20, "Block size fed to the engine, in milliseconds")
	verbose  = flag.Bool("verbose", false, "Enable debug logging")
)

const handle = 1

func main() {
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "sampler-play",
	})
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	if *file == "" {
		logger.Fatal("no input file (use -file)")
	}

	samples, rate, channels, err := decodeFile(*file)
	if err != nil {
		logger.Fatal("decode failed", "file", *file, "err", err)
	}
	logger.Info("decoded", "file", *file, "rate", rate, "channels", channels,
		"frames", len(samples)/channels)

	var opener voice.Opener
	switch *backend {
	case "oto":
		opener = voice.OpenOto
	case "malgo":
		opener = voice.OpenMalgo
	case "portaudio":
		opener = voice.OpenPortAudio
	default:
		logger.Fatal("unknown backend", "backend", *backend)
	}

	reg := sampler.New(
		sampler.WithVoiceOpener(opener),
		sampler.WithLogger(logger),
	)
	defer reg.Dispose()

	if err := reg.Initialize(handle, rate, channels, *capacity); err != nil {
		logger.Fatal("initialize failed", "err", err)
	}
	if err := reg.SetPlaybackSpeed(handle, *speed); err != nil {
		logger.Fatal("bad speed", "err", err)
	}
	if err := reg.SetVolume(handle, *volume); err != nil {
		logger.Fatal("bad volume", "err", err)
	}

	blockFrames := rate * *blockMs / 1000
	if blockFrames < 1 {
		blockFrames = 1
	}
	blockDur := time.Duration(*blockMs) * time.Millisecond

	for off := 0; off < len(samples); off += blockFrames * channels {
		end := min(off+blockFrames*channels, len(samples))
		block := encodeFloat32(samples[off:end])

		// Backpressure is the normal steady state when producing faster
		// than the device drains; wait half a block and retry.
		for {
			ok, err := reg.Play(handle, block)
			if err != nil {
				logger.Fatal("play failed", "err", err)
			}
			if ok {
				break
			}
			time.Sleep(blockDur / 2)
		}
	}

	waitForDrain(reg, logger)

	if err := reg.Close(handle); err != nil {
		logger.Fatal("close failed", "err", err)
	}
	logger.Info("done")
}

// waitForDrain polls the device position until it stops advancing.
func waitForDrain(reg *sampler.Registry, logger *log.Logger) {
	last := int64(-2)
	for {
		time.Sleep(150 * time.Millisecond)
		pos := reg.CurrentTimeMicros(handle)
		logger.Debug("draining", "position_us", pos)
		if pos == last || pos == sampler.UnknownTimeMicros {
			return
		}
		last = pos
	}
}

// encodeFloat32 packs samples as raw little-endian float32 bytes, the wire
// format the engine's Play call expects.
func encodeFloat32(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

func decodeFile(path string) ([]float32, int, int, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return decodeWAV(path)
	case ".mp3":
		return decodeMP3(path)
	default:
		return nil, 0, 0, fmt.Errorf("unsupported file type: %s", path)
	}
}

func decodeWAV(path string) ([]float32, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, 0, 0, fmt.Errorf("not a valid WAV file: %s", path)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to read PCM data: %w", err)
	}

	return intBufferToFloat32(buf), buf.Format.SampleRate, buf.Format.NumChannels, nil
}

// intBufferToFloat32 normalizes integer PCM to float32 in [-1, 1].
func intBufferToFloat32(buf *goaudio.IntBuffer) []float32 {
	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := float32(int64(1) << (bitDepth - 1))

	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / scale
	}
	return samples
}

func decodeMP3(path string) ([]float32, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer f.Close()

	d, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to open MP3 decoder: %w", err)
	}

	// go-mp3 always emits 16-bit stereo little-endian PCM.
	raw, err := io.ReadAll(d)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to decode MP3 stream: %w", err)
	}

	samples := make([]float32, len(raw)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		samples[i] = float32(v) / 32768.0
	}
	return samples, d.SampleRate(), 2, nil
}
