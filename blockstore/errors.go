package blockstore

import "errors"

var (
	// ErrInvalidKey indicates a serialized key is not exactly KeySize bytes.
	ErrInvalidKey = errors.New("blockstore: invalid block key")

	// ErrIOFailure indicates a read/write error in a persistent backend.
	ErrIOFailure = errors.New("blockstore: I/O failure")

	// ErrInvalidBaseDir indicates the base directory path is invalid.
	ErrInvalidBaseDir = errors.New("blockstore: invalid base directory")

	// ErrRemote indicates a remote endpoint returned an unexpected response.
	ErrRemote = errors.New("blockstore: remote store failure")

	// ErrNoEndpoints indicates no remote endpoint is configured or discovered.
	ErrNoEndpoints = errors.New("blockstore: no endpoints")

	// ErrDNSLookupFailed indicates endpoint discovery failed.
	ErrDNSLookupFailed = errors.New("blockstore: DNS lookup failed")

	// ErrDNSSECValidationFailed indicates the resolver did not set the AD flag.
	ErrDNSSECValidationFailed = errors.New("blockstore: DNSSEC validation failed")

	// ErrBlockTooLarge indicates a block exceeds MaxBlockSize.
	ErrBlockTooLarge = errors.New("blockstore: block too large")

	// ErrUnknownBackend indicates the configured backend name is not supported.
	ErrUnknownBackend = errors.New("blockstore: unknown backend")
)
