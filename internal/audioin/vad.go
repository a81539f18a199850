package audioin

// Frame-level voice activity detection: 10 ms frames at 16 kHz,
// classified by short-term energy with run-length smoothing. The
// detector exposes the transition contract the capture loop consumes
// (speech start / speech end / no change); three aggressiveness modes
// trade trigger latency against tail clipping.

const (
	// VadSampleRate is the only rate the detector operates at.
	VadSampleRate = 16000
	// VadFrameSamples is 10 ms at 16 kHz.
	VadFrameSamples = 160
)

// vadProfile tunes one aggressiveness mode.
type vadProfile struct {
	energyThreshold float64 // mean-square threshold on [-1, 1] samples
	triggerFrames   int     // consecutive active frames to enter speech
	hangoverFrames  int     // consecutive quiet frames to leave speech
}

// Mode 0 is the most permissive (slow to cut a segment off), mode 2
// the most aggressive.
var vadProfiles = [3]vadProfile{
	{energyThreshold: 0.0005, triggerFrames: 2, hangoverFrames: 50},
	{energyThreshold: 0.0015, triggerFrames: 3, hangoverFrames: 35},
	{energyThreshold: 0.0040, triggerFrames: 3, hangoverFrames: 20},
}

// VAD is a three-mode speech/silence classifier over fixed 10 ms
// frames. Not safe for concurrent use; the audio-in processor is its
// only caller.
type VAD struct {
	profile   vadProfile
	speaking  bool
	activeRun int
	quietRun  int
}

// NewVAD builds a detector with the given aggressiveness mode (0-2,
// clamped).
func NewVAD(mode int) *VAD {
	if mode < 0 {
		mode = 0
	}
	if mode > 2 {
		mode = 2
	}
	return &VAD{profile: vadProfiles[mode]}
}

// ProcessChunk classifies one frame of exactly VadFrameSamples i16
// samples. Returns (true, true) on a silence-to-speech transition,
// (true, false) on speech-to-silence, and (false, _) when the state is
// unchanged. Short frames are treated as silence.
func (v *VAD) ProcessChunk(frame []int16) (changed, speaking bool) {
	active := len(frame) == VadFrameSamples && frameEnergy(frame) >= v.profile.energyThreshold

	if active {
		v.activeRun++
		v.quietRun = 0
	} else {
		v.quietRun++
		v.activeRun = 0
	}

	if !v.speaking && v.activeRun >= v.profile.triggerFrames {
		v.speaking = true
		return true, true
	}
	if v.speaking && v.quietRun >= v.profile.hangoverFrames {
		v.speaking = false
		return true, false
	}
	return false, v.speaking
}

// Speaking reports whether the detector is currently inside a speech
// segment.
func (v *VAD) Speaking() bool { return v.speaking }

// frameEnergy is the mean square of the frame normalized to [-1, 1].
func frameEnergy(frame []int16) float64 {
	var sum float64
	for _, s := range frame {
		f := float64(s) / 32768
		sum += f * f
	}
	return sum / float64(len(frame))
}
