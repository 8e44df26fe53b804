package storage

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("storage: key not found")

	// ErrInvalidKey is returned for empty keys or keys with path traversal segments.
	ErrInvalidKey = errors.New("storage: invalid key")

	// ErrInvalidConfig is returned when a backend is misconfigured.
	ErrInvalidConfig = errors.New("storage: invalid configuration")

	// ErrAccessDenied is returned when the backend refuses the operation.
	ErrAccessDenied = errors.New("storage: access denied")

	// ErrWriteFailed is returned when a value could not be persisted.
	ErrWriteFailed = errors.New("storage: write failed")

	// ErrDeleteFailed is returned when a key could not be removed.
	ErrDeleteFailed = errors.New("storage: delete failed")
)

// wrapS3Error maps S3 errors onto the package sentinels.
// The original error is formatted with %v so callers match on sentinels only.
func wrapS3Error(err error, fallback error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case "AccessDenied", "Forbidden":
			return fmt.Errorf("%w: %v", ErrAccessDenied, err)
		}
	}

	var notFound *types.NoSuchKey
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	return fmt.Errorf("%w: %v", fallback, err)
}
