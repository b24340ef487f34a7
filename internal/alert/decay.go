package alert

const (
	// TriggerIntensity is where a trigger puts the alert; deliberately below 1.
	TriggerIntensity = 0.8
	// DecayStep is removed on every tick, so one trigger fades in 32 ticks.
	DecayStep = 0.025

	zeroSnap = 1e-9
)

// Decay is a single scalar alert intensity in [0, 1] driven by triggers and
// faded by ticks. The zero value is an idle alert.
type Decay struct {
	intensity float64
}

// Trigger resets the intensity to TriggerIntensity. Repeated triggers do not
// stack.
func (d *Decay) Trigger() {
	d.intensity = TriggerIntensity
}

// Tick decays the intensity by one step, floored at zero, and returns the
// new value. Call it exactly once per processed frame.
func (d *Decay) Tick() float64 {
	d.intensity -= DecayStep
	if d.intensity < zeroSnap {
		d.intensity = 0
	}
	return d.intensity
}

func (d *Decay) Intensity() float64 {
	return d.intensity
}

func (d *Decay) Active() bool {
	return d.intensity > 0
}
