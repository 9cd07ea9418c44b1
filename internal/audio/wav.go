package audio

import (
	"bytes"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// DecodeWAV reads a WAV file into a Stem, converting the decoder's integer
// PCM buffer into our float64 domain. The stem's Name must be supplied by
// the caller (the decoder has no notion of a logical stem name).
func DecodeWAV(name string, r io.Reader) (*Stem, int, error) {
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, 0, fmt.Errorf("audio: read wav %s: %w", name, err)
		}
		rs = bytes.NewReader(b)
	}
	dec := wav.NewDecoder(rs)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("audio: %s is not a valid WAV file", name)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("audio: decode wav %s: %w", name, err)
	}
	numChans := buf.Format.NumChannels
	if numChans != 1 && numChans != 2 {
		return nil, 0, fmt.Errorf("audio: %s has unsupported channel count %d", name, numChans)
	}
	fb := buf.AsFloatBuffer()
	samples := make([]float64, len(fb.Data))
	maxVal := float64(int(1) << (uint(bitDepthOrDefault(dec)) - 1))
	for i, v := range buf.Data {
		samples[i] = float64(v) / maxVal
	}

	return &Stem{
		Name:     name,
		Channels: Channels(numChans),
		Samples:  samples,
	}, int(buf.Format.SampleRate), nil
}

func bitDepthOrDefault(dec *wav.Decoder) int {
	if dec.BitDepth > 0 {
		return int(dec.BitDepth)
	}
	return 16
}

// MemoryWriteSeeker is an in-memory io.WriteSeeker, used to give the WAV
// encoder a seekable sink when the final destination is a byte slice bound
// for an ArtifactSink rather than a file on disk.
type MemoryWriteSeeker struct {
	buf []byte
	pos int
}

// NewMemoryWriteSeeker returns an empty MemoryWriteSeeker.
func NewMemoryWriteSeeker() *MemoryWriteSeeker {
	return &MemoryWriteSeeker{}
}

func (m *MemoryWriteSeeker) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *MemoryWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = m.pos
	case io.SeekEnd:
		base = len(m.buf)
	default:
		return 0, fmt.Errorf("audio: invalid seek whence %d", whence)
	}
	newPos := base + int(offset)
	if newPos < 0 {
		return 0, fmt.Errorf("audio: negative seek position")
	}
	m.pos = newPos
	return int64(newPos), nil
}

// Bytes returns the buffer's full contents written so far.
func (m *MemoryWriteSeeker) Bytes() []byte {
	return m.buf
}

// EncodeWAVOptions controls the bit depth used when writing full_song.wav.
// Only 16- or 32-bit linear PCM is permitted; anything else falls back to
// 16-bit.
type EncodeWAVOptions struct {
	BitDepth int // 16 or 32; defaults to 16
}

// EncodeWAV writes a stereo Mixdown to w as linear PCM WAV at the given
// sample rate. The mixdown is clipped to ±1.0 before conversion, matching
// the "Peak clipped at ±1.0 at write time" rule (§6).
func EncodeWAV(w io.WriteSeeker, m *Mixdown, sampleRate int, opts EncodeWAVOptions) error {
	if m == nil {
		return fmt.Errorf("audio: cannot encode nil mixdown")
	}
	bitDepth := opts.BitDepth
	if bitDepth != 16 && bitDepth != 32 {
		bitDepth = 16
	}
	m.ClipToUnity()

	enc := wav.NewEncoder(w, sampleRate, bitDepth, 2, 1)
	maxVal := float64(int(1)<<(uint(bitDepth)-1)) - 1
	data := make([]int, len(m.Samples))
	for i, v := range m.Samples {
		data[i] = int(v * maxVal)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: write wav: %w", err)
	}
	return enc.Close()
}
