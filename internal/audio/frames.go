package audio

import "encoding/binary"

// FrameBytes returns the byte length of one frame of 16-bit mono PCM.
func FrameBytes(sampleRate, frameMs int) int {
	return sampleRate * 2 * frameMs / 1000
}

// SplitFrames splits a PCM buffer into frames of frameBytes each, in order.
// The final frame may be shorter when the buffer is not a whole number of
// frames.
func SplitFrames(pcm []byte, frameBytes int) [][]byte {
	if frameBytes <= 0 || len(pcm) == 0 {
		return nil
	}
	frames := make([][]byte, 0, (len(pcm)+frameBytes-1)/frameBytes)
	for i := 0; i < len(pcm); i += frameBytes {
		end := i + frameBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		frames = append(frames, pcm[i:end])
	}
	return frames
}

// ExtractPCM strips a RIFF/WAVE container from synthesized audio, returning
// the raw sample payload of the data chunk. Buffers that are not RIFF are
// returned unchanged, so raw PCM passes through.
func ExtractPCM(buf []byte) []byte {
	if len(buf) < 12 || string(buf[0:4]) != "RIFF" || string(buf[8:12]) != "WAVE" {
		return buf
	}
	i := 12
	for i+8 <= len(buf) {
		chunkID := string(buf[i : i+4])
		chunkSize := int(binary.LittleEndian.Uint32(buf[i+4 : i+8]))
		i += 8
		if chunkID == "data" {
			end := i + chunkSize
			if end > len(buf) {
				end = len(buf)
			}
			return buf[i:end]
		}
		// Chunks are word-aligned; odd sizes carry a pad byte.
		i += chunkSize + (chunkSize & 1)
	}
	return buf
}

// Resample converts 16-bit mono PCM between sample rates using linear
// interpolation. Synthesis providers do not always speak the wire rate.
func Resample(pcm []byte, inputRate, outputRate int) []byte {
	if inputRate == outputRate || len(pcm) < 2 {
		return pcm
	}

	samples := decodeSamples(pcm)
	ratio := float64(outputRate) / float64(inputRate)
	outputLength := int(float64(len(samples)) * ratio)
	output := make([]int16, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio
		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}
		fraction := srcPos - float64(idx0)
		output[i] = int16(float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction)
	}

	out := make([]byte, len(output)*2)
	for i, s := range output {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
