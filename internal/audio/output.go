// Package audio owns the path from synthesized samples to the output
// device: a streaming playback sink, an opener abstraction over the audio
// subsystem, and a background monitor that tracks output-device changes.
package audio

// Stream is one open connection to the output device. Write renders a chunk
// of float32 mono samples, blocking until the device has accepted it.
type Stream interface {
	Write(samples []float32) error
	Close() error
}

// Opener opens output streams against the current default device.
type Opener interface {
	Open(sampleRate int) (Stream, error)
	// Reinit drops cached device state so the next Open binds the current
	// system default. Callers must never invoke it while a stream is open.
	Reinit() error
}
