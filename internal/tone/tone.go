// Package tone maps semantic tone names to synthesis parameters.
package tone

// Params are the synthesis knobs a tone resolves to. Variation and
// VariationWeight shape the voice; LengthScale controls pacing (lower is
// faster speech).
type Params struct {
	Variation       float64
	VariationWeight float64
	LengthScale     float64
}

var presets = map[string]Params{
	"neutral":   {Variation: 0.667, VariationWeight: 0.8, LengthScale: 1.0},
	"excited":   {Variation: 0.8, VariationWeight: 0.9, LengthScale: 0.9},
	"concerned": {Variation: 0.5, VariationWeight: 0.6, LengthScale: 1.1},
	"calm":      {Variation: 0.4, VariationWeight: 0.5, LengthScale: 1.15},
	"urgent":    {Variation: 0.7, VariationWeight: 0.85, LengthScale: 0.85},
}

// Resolve returns the synthesis parameters for a tone name. Unknown names
// fall back to the neutral preset. Speed divides the preset's length scale,
// so a higher speed shortens the utterance; callers are responsible for any
// bounds on speed beyond it being positive.
func Resolve(name string, speed float64) Params {
	base, ok := presets[name]
	if !ok {
		base = presets["neutral"]
	}
	return Params{
		Variation:       base.Variation,
		VariationWeight: base.VariationWeight,
		LengthScale:     base.LengthScale / speed,
	}
}

// Known reports whether name is one of the preset tones.
func Known(name string) bool {
	_, ok := presets[name]
	return ok
}

// Names lists the available tone names.
func Names() []string {
	return []string{"neutral", "excited", "concerned", "calm", "urgent"}
}
