// Package gpio drives the link indicator LED with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Indicator shows the CAN link state on an output line.
type Indicator interface {
	// Set drives the indicator on (link up) or off.
	Set(on bool) error

	// Close turns the indicator off and releases GPIO resources.
	Close() error
}

// DisabledPin means no indicator is configured.
const DisabledPin = -1

// DefaultChip is the GPIO chip on a Raspberry Pi / Cerbo-class board.
const DefaultChip = "gpiochip0"

// Nop is an Indicator that does nothing, used when no pin is configured.
type Nop struct{}

func (Nop) Set(bool) error { return nil }
func (Nop) Close() error   { return nil }
