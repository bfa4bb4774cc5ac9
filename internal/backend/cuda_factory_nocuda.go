//go:build !cuda

package backend

import (
	"errors"

	"github.com/samcharles93/memspace/internal/device"
)

var errCUDAUnavailable = errors.New("cuda accelerator is not available in this build")

func NewCUDA() (device.Accelerator, error) {
	return nil, errCUDAUnavailable
}
