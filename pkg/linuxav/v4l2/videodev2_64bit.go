//go:build linux && (amd64 || arm64)

package v4l2

import "unsafe"

var (
	_ [208]byte = [unsafe.Sizeof(v4l2Format{})]byte{}
	_ [88]byte  = [unsafe.Sizeof(v4l2Buffer{})]byte{}
)

// IOCTL constants whose argument size differs by architecture.
const (
	vidiocGFmt     = 0xc0d05604
	vidiocSFmt     = 0xc0d05605
	vidiocQuerybuf = 0xc0585609
	vidiocQbuf     = 0xc058560f
	vidiocDqbuf    = 0xc0585611
)

// v4l2Format has size 208 bytes on 64-bit (the union is 8-aligned).
type v4l2Format struct {
	typ uint32
	_   [4]byte
	pix v4l2PixFormat // union with window/vbi/sdr formats
	_   [152]byte     // padding to union size 200
}

// v4l2Buffer has size 88 bytes on 64-bit.
type v4l2Buffer struct {
	index     uint32
	typ       uint32
	bytesused uint32
	flags     uint32
	field     uint32
	_         [4]byte
	timestamp [16]byte // struct timeval
	timecode  [16]byte // struct v4l2_timecode
	sequence  uint32
	memory    uint32
	m         uint64 // union: mmap offset / userptr / planes / dmabuf fd
	length    uint32
	reserved2 uint32
	requestFd uint32
	_         [4]byte
}

func (b *v4l2Buffer) mmapOffset() uint32     { return uint32(b.m) }
func (b *v4l2Buffer) setMmapOffset(o uint32) { b.m = uint64(o) }
