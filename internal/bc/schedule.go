package bc

// LRSchedule yields the learning rate for an optimisation step. The trainer
// never consults it directly; it exists for updater implementations.
type LRSchedule interface {
	At(step int) float64
}

// ConstantLR is a schedule that returns the same rate for every step.
type ConstantLR float64

func (c ConstantLR) At(int) float64 { return float64(c) }
