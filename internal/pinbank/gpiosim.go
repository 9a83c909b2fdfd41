package pinbank

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/LeonardoBeccarini/trackside_sim/internal/model"
)

// DefaultGPIOSimRoot is where the gpio-sim kernel module exposes its chips.
const DefaultGPIOSimRoot = "/sys/devices/platform/gpio-sim.0"

// GPIOSimSink drives the simulated pull of a gpio-sim line, which the
// controller under test reads as a real input.
type GPIOSimSink struct {
	Root string // defaults to DefaultGPIOSimRoot
	Chip string // chip number, e.g. "1" for gpiochip1
}

// NewGPIOSimSink returns a sink for the given chip under root.
func NewGPIOSimSink(root, chip string) *GPIOSimSink {
	if root == "" {
		root = DefaultGPIOSimRoot
	}
	return &GPIOSimSink{Root: root, Chip: chip}
}

// PullPath returns the sysfs attribute controlling pin.
func (s *GPIOSimSink) PullPath(pin int) string {
	return filepath.Join(s.Root, "gpiochip"+s.Chip, fmt.Sprintf("sim_gpio%d", pin), "pull")
}

// Write opens the pull attribute, writes "pull-up" or "pull-down" and
// closes it again. The kernel applies the value on write.
func (s *GPIOSimSink) Write(pin int, state model.PinState) error {
	f, err := os.OpenFile(s.PullPath(pin), os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	if _, err := f.WriteString("pull-" + string(state)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
