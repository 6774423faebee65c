package integration

import "errors"

var (
	// ErrUnknownService is returned when a call names no registered service
	ErrUnknownService = errors.New("integration: unknown service")

	// ErrUnknownEntry is returned when a call or flow names no attached entry
	ErrUnknownEntry = errors.New("integration: unknown config entry")

	// ErrUnknownFlow is returned for a flow id that was never started or has finished
	ErrUnknownFlow = errors.New("integration: unknown flow")

	// ErrNotInitialized is returned when services are called before Initialize
	ErrNotInitialized = errors.New("integration: not initialized")

	// ErrAlreadyInitialized is returned by a second Initialize
	ErrAlreadyInitialized = errors.New("integration: already initialized")

	// ErrNoRegistrar is returned by dashboard operations when none is configured
	ErrNoRegistrar = errors.New("integration: no dashboard registrar configured")
)
