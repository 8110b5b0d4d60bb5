//go:build linux

package infra

import (
	"fmt"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/BryanGreenaway/RingLight/internal/domain"
)

// V4L2 constants (linux/videodev2.h).
const (
	v4l2BufTypeVideoCapture = 1
	v4l2MemoryMmap          = 1

	// _IOWR('V', 8, struct v4l2_requestbuffers)
	vidiocReqbufs = 0xc0145608
)

// v4l2RequestBuffers mirrors struct v4l2_requestbuffers (20 bytes).
type v4l2RequestBuffers struct {
	Count        uint32
	Type         uint32
	Memory       uint32
	Capabilities uint32
	Flags        uint8
	Reserved     [3]uint8
}

// V4L2Probe answers whether another capturer currently holds the device.
//
// A zero-count REQBUFS is a pure probe: it allocates nothing, but fails with
// EBUSY when another program owns the driver's buffer context. Every other
// outcome, including success and open failures, reads as "not in use".
type V4L2Probe struct {
	device string
	logger *zap.Logger
}

// NewV4L2Probe creates a probe for the given device path.
func NewV4L2Probe(device string, logger *zap.Logger) *V4L2Probe {
	return &V4L2Probe{device: device, logger: logger}
}

// CheckAvailable reports whether the device can be opened at all. Called once
// at startup; later probe failures read as "not in use" without logging.
func (p *V4L2Probe) CheckAvailable() error {
	fd, err := unix.Open(p.device, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrDeviceUnavailable, p.device, err)
	}
	unix.Close(fd)
	return nil
}

// InUse returns true iff the busy probe hits EBUSY.
func (p *V4L2Probe) InUse() bool {
	fd, err := unix.Open(p.device, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return false
	}
	defer unix.Close(fd)

	req := v4l2RequestBuffers{
		Type:   v4l2BufTypeVideoCapture,
		Memory: v4l2MemoryMmap,
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), vidiocReqbufs, uintptr(unsafe.Pointer(&req)))
	return errno == unix.EBUSY
}

// Ensure V4L2Probe implements domain.CameraProbe.
var _ domain.CameraProbe = (*V4L2Probe)(nil)
