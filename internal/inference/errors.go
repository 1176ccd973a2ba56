package inference

import (
	"errors"
	"fmt"

	"github.com/Brownie44l1/leaf-api/internal/model"
)

var (
	// ErrInvalidImage means the image path does not resolve or its content cannot be decoded.
	ErrInvalidImage = errors.New("invalid image")

	// ErrInvalidArgument means a caller-supplied parameter is out of range.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrModelUnavailable is model.ErrModelUnavailable, re-exported for callers of the pipeline.
	ErrModelUnavailable = model.ErrModelUnavailable
)

// unavailable makes sure an engine failure matches ErrModelUnavailable while
// keeping any more specific cause in the chain.
func unavailable(err error) error {
	if errors.Is(err, ErrModelUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
}
