package cryptree

import "errors"

var (
	// ErrNotFound indicates the block a capability names is absent from the store.
	ErrNotFound = errors.New("cryptree: block not found")

	// ErrDecryptionFailed indicates a component did not authenticate under the
	// supplied key: the key is wrong or the ciphertext was tampered with.
	ErrDecryptionFailed = errors.New("cryptree: decryption failed")

	// ErrMalformedChunk indicates a block or decrypted component does not match
	// the expected layout.
	ErrMalformedChunk = errors.New("cryptree: malformed chunk")

	// ErrIntegrity indicates a corrupted history: a version or chunk chain that
	// cycles or points at a missing block, a bad signature, a signer change, or
	// a content hash mismatch.
	ErrIntegrity = errors.New("cryptree: integrity violation")

	// ErrNilParam indicates a required parameter is nil.
	ErrNilParam = errors.New("cryptree: required parameter is nil")

	// ErrInvalidName indicates a child name is empty or contains path separators.
	ErrInvalidName = errors.New("cryptree: invalid name")

	// ErrNotDirectory indicates an operation requires a directory but the node is not one.
	ErrNotDirectory = errors.New("cryptree: node is not a directory")

	// ErrNotFile indicates an operation requires a file but the node is not one.
	ErrNotFile = errors.New("cryptree: node is not a file")

	// ErrChildExists indicates a child with the given name already exists.
	ErrChildExists = errors.New("cryptree: child already exists")

	// ErrChildNotFound indicates the named child does not exist in the directory.
	ErrChildNotFound = errors.New("cryptree: child not found")

	// ErrLocationInUse indicates an allocated version_id already holds a block.
	ErrLocationInUse = errors.New("cryptree: location already in use")

	// ErrNotSigned indicates the node carries no signing keypair. Where a write
	// key is being verified it means the node carries no write check either.
	ErrNotSigned = errors.New("cryptree: node is not signed")
)
