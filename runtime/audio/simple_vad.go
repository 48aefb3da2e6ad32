package audio

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"
)

const (
	simpleVADName = "simple-rms"
	// defaultSmoothingAlpha is the exponential smoothing factor (0.0-1.0).
	defaultSmoothingAlpha = 0.3
	// pcmBytesPerSample is the number of bytes per 16-bit PCM sample.
	pcmBytesPerSample = 2
	// pcmMaxAmplitude is the maximum amplitude for 16-bit signed audio.
	pcmMaxAmplitude = 32768.0
	// maxExpectedRMS is the expected maximum RMS for voice audio.
	maxExpectedRMS = 0.5
)

// SimpleVAD is a basic voice activity detector using RMS (Root Mean Square) analysis.
//
// State durations are measured on the audio clock: every analyzed chunk
// advances time by its own length at the configured sample rate. Replaying
// the same audio always yields the same transitions regardless of how fast
// frames arrive.
type SimpleVAD struct {
	params VADParams

	mu           sync.RWMutex
	state        VADState
	stateElapsed time.Duration

	smoothedRMS float64
	alpha       float64
}

// NewSimpleVAD creates a SimpleVAD analyzer with the given parameters.
func NewSimpleVAD(params VADParams) (*SimpleVAD, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	return &SimpleVAD{
		params: params,
		state:  VADStateQuiet,
		alpha:  defaultSmoothingAlpha,
	}, nil
}

// Name returns the analyzer identifier.
func (v *SimpleVAD) Name() string {
	return simpleVADName
}

// Analyze processes audio and returns voice probability based on RMS volume.
func (v *SimpleVAD) Analyze(ctx context.Context, audio []byte) (float64, error) {
	if len(audio) < pcmBytesPerSample {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	rms := calculateRMS(audio)

	v.mu.Lock()
	defer v.mu.Unlock()

	v.smoothedRMS = v.alpha*rms + (1-v.alpha)*v.smoothedRMS
	probability := v.rmsToProbability(v.smoothedRMS)

	chunk := pcmDuration(len(audio), v.params.SampleRate)
	v.stateElapsed += chunk

	next := v.computeNextState(v.state, probability, v.stateElapsed)
	if next != v.state {
		v.state = next
		v.stateElapsed = 0
	}

	return probability, nil
}

// calculateRMS computes the Root Mean Square of 16-bit little-endian PCM samples.
func calculateRMS(audio []byte) float64 {
	numSamples := len(audio) / pcmBytesPerSample
	if numSamples == 0 {
		return 0
	}

	var sumSquares float64
	for i := 0; i < numSamples; i++ {
		// #nosec G115 -- overflow is intentional for signed PCM conversion
		sample := int16(binary.LittleEndian.Uint16(audio[i*pcmBytesPerSample:]))
		normalized := float64(sample) / pcmMaxAmplitude
		sumSquares += normalized * normalized
	}

	return math.Sqrt(sumSquares / float64(numSamples))
}

// rmsToProbability converts RMS to a voice probability.
func (v *SimpleVAD) rmsToProbability(rms float64) float64 {
	if rms <= v.params.MinVolume {
		return 0
	}

	// Typical voice RMS is 0.05-0.3 for normalized audio
	probability := (rms - v.params.MinVolume) / (maxExpectedRMS - v.params.MinVolume)

	if probability < 0 {
		return 0
	}
	if probability > 1 {
		return 1
	}
	return probability
}

// computeNextState determines the next state based on current state,
// probability and how long the current state has lasted.
func (v *SimpleVAD) computeNextState(current VADState, probability float64, inState time.Duration) VADState {
	aboveThreshold := probability >= v.params.Confidence

	switch current {
	case VADStateQuiet:
		if aboveThreshold {
			return VADStateStarting
		}
	case VADStateStarting:
		if !aboveThreshold {
			return VADStateQuiet
		}
		if inState >= secsToDuration(v.params.StartSecs) {
			return VADStateSpeaking
		}
	case VADStateSpeaking:
		if !aboveThreshold {
			return VADStateStopping
		}
	case VADStateStopping:
		if aboveThreshold {
			return VADStateSpeaking
		}
		if inState >= secsToDuration(v.params.StopSecs) {
			return VADStateQuiet
		}
	}
	return current
}

// State returns the current VAD state.
func (v *SimpleVAD) State() VADState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

// Reset clears accumulated state for a new conversation.
func (v *SimpleVAD) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.state = VADStateQuiet
	v.stateElapsed = 0
	v.smoothedRMS = 0
}

// pcmDuration returns the play time of n bytes of mono 16-bit PCM.
func pcmDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := n / pcmBytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
