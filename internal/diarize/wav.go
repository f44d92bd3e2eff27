package diarize

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// readMonoPCM reads a 16-bit mono PCM WAV file into normalized [-1, 1]
// samples. Input always comes from our own transcoder's canonical format, so
// only that layout is supported.
func readMonoPCM(path string) (samples []float64, sampleRate int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		_ = f.Close()
	}()

	var riff [12]byte
	if _, err := io.ReadFull(f, riff[:]); err != nil {
		return nil, 0, fmt.Errorf("read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("%s is not a RIFF/WAVE file", path)
	}

	var channels, bitsPerSample int
	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(f, chunkHeader[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, 0, fmt.Errorf("%s has no data chunk", path)
			}
			return nil, 0, err
		}
		chunkID := string(chunkHeader[0:4])
		chunkSize := int64(binary.LittleEndian.Uint32(chunkHeader[4:8]))

		switch chunkID {
		case "fmt ":
			fmtChunk := make([]byte, chunkSize)
			if _, err := io.ReadFull(f, fmtChunk); err != nil {
				return nil, 0, fmt.Errorf("read fmt chunk: %w", err)
			}
			audioFormat := int(binary.LittleEndian.Uint16(fmtChunk[0:2]))
			channels = int(binary.LittleEndian.Uint16(fmtChunk[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(fmtChunk[4:8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(fmtChunk[14:16]))
			if audioFormat != 1 || channels != 1 || bitsPerSample != 16 {
				return nil, 0, fmt.Errorf("%s: expected 16-bit mono PCM, got format=%d channels=%d bits=%d",
					path, audioFormat, channels, bitsPerSample)
			}
		case "data":
			if sampleRate == 0 {
				return nil, 0, fmt.Errorf("%s: data chunk before fmt chunk", path)
			}
			raw := make([]byte, chunkSize)
			if _, err := io.ReadFull(f, raw); err != nil {
				return nil, 0, fmt.Errorf("read data chunk: %w", err)
			}
			samples = make([]float64, len(raw)/2)
			for i := range samples {
				v := int16(binary.LittleEndian.Uint16(raw[2*i : 2*i+2]))
				samples[i] = float64(v) / math.MaxInt16
			}
			return samples, sampleRate, nil
		default:
			// Skip ancillary chunks (LIST, fact, ...). Chunks are word-aligned.
			skip := chunkSize
			if skip%2 == 1 {
				skip++
			}
			if _, err := f.Seek(skip, io.SeekCurrent); err != nil {
				return nil, 0, err
			}
		}
	}
}
