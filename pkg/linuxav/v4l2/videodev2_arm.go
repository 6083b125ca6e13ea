//go:build linux && arm

package v4l2

import "unsafe"

var (
	_ [204]byte = [unsafe.Sizeof(v4l2Format{})]byte{}
	_ [68]byte  = [unsafe.Sizeof(v4l2Buffer{})]byte{}
)

// IOCTL constants whose argument size differs by architecture.
const (
	vidiocGFmt     = 0xc0cc5604
	vidiocSFmt     = 0xc0cc5605
	vidiocQuerybuf = 0xc0445609
	vidiocQbuf     = 0xc044560f
	vidiocDqbuf    = 0xc0445611
)

// v4l2Format has size 204 bytes on 32-bit ARM.
type v4l2Format struct {
	typ uint32
	pix v4l2PixFormat // union with window/vbi/sdr formats
	_   [152]byte     // padding to union size 200
}

// v4l2Buffer has size 68 bytes on 32-bit ARM.
type v4l2Buffer struct {
	index     uint32
	typ       uint32
	bytesused uint32
	flags     uint32
	field     uint32
	timestamp [8]byte  // struct timeval with 32-bit longs
	timecode  [16]byte // struct v4l2_timecode
	sequence  uint32
	memory    uint32
	m         uint32 // union: mmap offset / userptr / dmabuf fd
	length    uint32
	reserved2 uint32
	requestFd uint32
}

func (b *v4l2Buffer) mmapOffset() uint32     { return b.m }
func (b *v4l2Buffer) setMmapOffset(o uint32) { b.m = o }
