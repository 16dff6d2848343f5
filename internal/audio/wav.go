package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// wavHeader is the canonical 44-byte header written by EncodeWAV
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

const wavHeaderSize = 44

// WAVInfo describes the PCM stream inside a WAV file
type WAVInfo struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	AudioFormat   uint16  `json:"audio_format"`
	Duration      float64 `json:"duration_seconds"`
	DataOffset    int     `json:"-"`
	DataSize      uint32  `json:"data_size_bytes"`
	NumSamples    uint32  `json:"num_samples"`
}

// EncodeWAV encodes mono PCM-16 samples into a WAV file
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	numChannels := uint16(1)
	bitsPerSample := uint16(16)
	dataSize := uint32(len(samples) * 2)

	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(samples)*2))

	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	return buf.Bytes(), nil
}

// GetWAVInfo walks the RIFF chunks and returns the format and data location.
// Files with extra chunks (LIST, fact) between "fmt " and "data" are accepted.
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("WAV data too short: need at least 12 bytes, got %d", len(data))
	}

	if string(data[0:4]) != "RIFF" {
		return nil, fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	info := &WAVInfo{}
	haveFormat := false
	offset := 12

	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return nil, fmt.Errorf("invalid WAV file: truncated fmt chunk")
			}
			info.AudioFormat = binary.LittleEndian.Uint16(data[body : body+2])
			info.Channels = binary.LittleEndian.Uint16(data[body+2 : body+4])
			info.SampleRate = binary.LittleEndian.Uint32(data[body+4 : body+8])
			info.BitsPerSample = binary.LittleEndian.Uint16(data[body+14 : body+16])
			haveFormat = true

		case "data":
			if !haveFormat {
				return nil, fmt.Errorf("invalid WAV file: data chunk before fmt chunk")
			}
			if body+size > len(data) {
				// Streamed WAVs often carry a bogus size; clamp to what we have
				size = len(data) - body
			}
			info.DataOffset = body
			info.DataSize = uint32(size)
			if info.SampleRate == 0 || info.BitsPerSample == 0 || info.Channels == 0 {
				return nil, fmt.Errorf("invalid WAV file: zero sample rate, bit depth or channel count")
			}
			frameSize := uint32(info.BitsPerSample/8) * uint32(info.Channels)
			if frameSize == 0 {
				return nil, fmt.Errorf("invalid WAV file: unsupported bit depth %d", info.BitsPerSample)
			}
			info.NumSamples = info.DataSize / frameSize
			info.Duration = float64(info.NumSamples) / float64(info.SampleRate)
			return info, nil
		}

		// Chunks are word aligned
		offset = body + size + size%2
	}

	if !haveFormat {
		return nil, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}
	return nil, fmt.Errorf("invalid WAV file: missing data chunk")
}

// DecodeWAV decodes a mono 16-bit PCM WAV file into samples and its sample rate
func DecodeWAV(data []byte) ([]int16, int, error) {
	info, err := GetWAVInfo(data)
	if err != nil {
		return nil, 0, err
	}

	if info.AudioFormat != 1 {
		return nil, 0, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", info.AudioFormat)
	}

	if info.BitsPerSample != 16 {
		return nil, 0, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", info.BitsPerSample)
	}

	if info.Channels != 1 {
		return nil, 0, fmt.Errorf("unsupported channel count: %d (only mono is supported)", info.Channels)
	}

	if info.NumSamples == 0 {
		return nil, 0, fmt.Errorf("no audio data found")
	}

	samples := make([]int16, info.NumSamples)
	raw := data[info.DataOffset : info.DataOffset+int(info.NumSamples)*2]
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, samples); err != nil {
		return nil, 0, fmt.Errorf("failed to read audio samples: %w", err)
	}

	return samples, int(info.SampleRate), nil
}
