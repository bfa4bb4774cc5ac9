//go:build cuda

package backend

import (
	"github.com/samcharles93/memspace/internal/backend/cuda"
	"github.com/samcharles93/memspace/internal/device"
)

func NewCUDA() (device.Accelerator, error) {
	return cuda.New()
}
