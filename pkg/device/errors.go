package device

import "errors"

var (
	// ErrUnknownRequest is returned for request IDs with no handler
	ErrUnknownRequest = errors.New("device: unknown request")
	// ErrReadOnly is returned for OUT transfers to a read-only request
	ErrReadOnly = errors.New("device: request is read-only")
	// ErrWriteOnly is returned for IN transfers to a write-only request
	ErrWriteOnly = errors.New("device: request is write-only")
	// ErrNoBootloader is returned for DFU when no bootloader hook is set
	ErrNoBootloader = errors.New("device: no bootloader")
)
