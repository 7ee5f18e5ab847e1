package clkdst

import "errors"

var (
	// ErrNotInitialized is returned when an operation runs before the
	// interface or device init that it depends on.
	ErrNotInitialized = errors.New("clkdst: not initialized")
	// ErrBadDevice is returned for a device handle outside the table or
	// outside the mask passed to InitInterface.
	ErrBadDevice = errors.New("clkdst: bad device handle")
	// ErrBusy is returned when the per-device critical section cannot be
	// entered within the acquire timeout.
	ErrBusy = errors.New("clkdst: device busy")
	// ErrBadParams is returned by plan validation failures.
	ErrBadParams = errors.New("clkdst: bad parameters")
	// ErrBadChip is returned when the product ID readback does not match
	// the expected family.
	ErrBadChip = errors.New("clkdst: unexpected product id")
	// ErrLockTimeout is returned when a PLL fails to lock within the
	// derived timeout.
	ErrLockTimeout = errors.New("clkdst: pll lock timeout")
	// ErrBadMode is returned when a command conflicts with the configured
	// mode (e.g. a software SYSREF pulse outside pulsed mode).
	ErrBadMode = errors.New("clkdst: operation not allowed in current mode")
)
