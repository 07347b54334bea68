//go:build !linux

package media

import (
	"context"
	"fmt"

	"github.com/dkeye/callroom/internal/domain"
)

// DeviceCapture has no hardware drivers outside linux; browsers capture there.
type DeviceCapture struct{}

func NewDeviceCapture(string) (*DeviceCapture, error) {
	return &DeviceCapture{}, nil
}

func (d *DeviceCapture) GetUserMedia(context.Context, Constraints) (Stream, error) {
	return Stream{}, fmt.Errorf("get user media: %w", domain.ErrDeviceUnavailable)
}

func (d *DeviceCapture) GetDisplayMedia(context.Context) (*Track, error) {
	return nil, fmt.Errorf("get display media: %w", domain.ErrDeviceUnavailable)
}
