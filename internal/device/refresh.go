package device

import (
	"context"

	"codeberg.org/mutker/swervectl/internal/errors"
)

// RefreshAll refreshes signals from any number of devices, issuing one
// Refresh per device in first-seen order. Every device is attempted even if
// an earlier one fails; the returned error joins all failures.
func RefreshAll(ctx context.Context, signals ...*Signal) error {
	if len(signals) == 0 {
		return nil
	}

	var order []Device
	groups := make(map[Device][]*Signal)
	for _, sig := range signals {
		dev := sig.Device()
		if _, seen := groups[dev]; !seen {
			order = append(order, dev)
		}
		groups[dev] = append(groups[dev], sig)
	}

	var errs []error
	for _, dev := range order {
		if dev == nil {
			errs = append(errs, errors.New().WithData(ErrUnknownSignal, "signal has no device"))
			continue
		}
		if err := dev.Refresh(ctx, groups[dev]...); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// SetUpdateFrequencyForAll applies one publish rate to signals across
// devices.
func SetUpdateFrequencyForAll(ctx context.Context, hz float64, signals ...*Signal) error {
	var order []Device
	groups := make(map[Device][]*Signal)
	for _, sig := range signals {
		dev := sig.Device()
		if dev == nil {
			continue
		}
		if _, seen := groups[dev]; !seen {
			order = append(order, dev)
		}
		groups[dev] = append(groups[dev], sig)
	}

	var errs []error
	for _, dev := range order {
		if err := dev.SetUpdateFrequency(ctx, hz, groups[dev]...); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
