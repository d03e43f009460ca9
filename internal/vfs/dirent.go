package vfs

import (
	"encoding/binary"
)

// Directory entry types, as in dirent.d_type.
const (
	DT_UNKNOWN = 0
	DT_FIFO    = 1
	DT_CHR     = 2
	DT_DIR     = 4
	DT_BLK     = 6
	DT_REG     = 8
	DT_LNK     = 10
	DT_SOCK    = 12
)

// Readdir record layout, little endian:
//
//	d_ino    uint64
//	d_off    uint64  offset of the next record
//	d_reclen uint16
//	d_type   uint8
//	d_name   NUL terminated, record padded to 8 bytes
const direntHeaderSize = 8 + 8 + 2 + 1

// Dirent is a decoded readdir record.
type Dirent struct {
	Ino  uint64
	Off  uint64
	Type uint8
	Name string
}

// DirentType converts a mode to a d_type value.
func DirentType(mode uint32) uint8 {
	return uint8((mode & S_IFMT) >> 12)
}

// DirentSize returns the encoded size of a record named name.
func DirentSize(name string) int {
	return (direntHeaderSize + len(name) + 1 + 7) &^ 7
}

func putDirent(buf []byte, ino, next uint64, typ uint8, name string) int {
	size := DirentSize(name)
	binary.LittleEndian.PutUint64(buf[0:], ino)
	binary.LittleEndian.PutUint64(buf[8:], next)
	binary.LittleEndian.PutUint16(buf[16:], uint16(size))
	buf[18] = typ
	n := copy(buf[direntHeaderSize:], name)
	clear(buf[direntHeaderSize+n : size])
	return size
}

// ParseDirents decodes the records produced by Readdir.
func ParseDirents(buf []byte) ([]Dirent, error) {
	var dirents []Dirent
	for len(buf) > 0 {
		if len(buf) < direntHeaderSize {
			return nil, ErrInvalidArgument
		}
		reclen := int(binary.LittleEndian.Uint16(buf[16:]))
		if reclen < direntHeaderSize+1 || reclen > len(buf) {
			return nil, ErrInvalidArgument
		}
		name := buf[direntHeaderSize:reclen]
		for i, c := range name {
			if c == 0 {
				name = name[:i]
				break
			}
		}
		dirents = append(dirents, Dirent{
			Ino:  binary.LittleEndian.Uint64(buf[0:]),
			Off:  binary.LittleEndian.Uint64(buf[8:]),
			Type: buf[18],
			Name: string(name),
		})
		buf = buf[reclen:]
	}
	return dirents, nil
}
