// Package control publishes the live generation through a memory-mapped
// control file, so other processes can follow reloads without an RPC.
// Readers map the same file and poll Seq.
package control

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	BlockSize = 4096       // 1 page
	Magic     = 0x4D454447 // 'MEDG'
	Version   = 1
)

// Block is the on-disk layout of the control file. Seq is written last, so
// a reader that observes a new Seq also observes the fields written before it.
type Block struct {
	Magic        uint32
	Version      uint32
	Seq          uint64 // atomic
	Records      uint64
	SnapshotPath [256]byte
	GenerationID [40]byte
	Padding      [BlockSize - 320]byte
}

// Controller owns a mapped control file.
type Controller struct {
	path string
	file *os.File
	data []byte
	blk  *Block
}

// OpenOrCreate maps the control file at path, creating and initializing it
// if needed. An existing file with a foreign magic number is rejected.
func OpenOrCreate(path string) (*Controller, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open control file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}
	// Check the header before touching the file so a foreign file is left as is.
	if info.Size() > 0 {
		var hdr [4]byte
		if _, err := f.ReadAt(hdr[:], 0); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("%s is not a control file: %w", path, err)
		}
		if magic := binary.NativeEndian.Uint32(hdr[:]); magic != 0 && magic != Magic {
			_ = f.Close()
			return nil, fmt.Errorf("%s is not a control file (magic %x)", path, magic)
		}
	}
	if info.Size() < BlockSize {
		if err := f.Truncate(BlockSize); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("truncate: %w", err)
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, BlockSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap: %w", err)
	}
	blk := (*Block)(unsafe.Pointer(&data[0]))

	switch blk.Magic {
	case 0:
		blk.Magic = Magic
		blk.Version = Version
	case Magic:
	default:
		magic := blk.Magic
		_ = unix.Munmap(data)
		_ = f.Close()
		return nil, fmt.Errorf("%s is not a control file (magic %x)", path, magic)
	}
	return &Controller{path: path, file: f, data: data, blk: blk}, nil
}

func (c *Controller) Path() string {
	return c.path
}

// Seq returns the last published generation sequence number, 0 if none.
func (c *Controller) Seq() uint64 {
	return atomic.LoadUint64(&c.blk.Seq)
}

func (c *Controller) Records() uint64 {
	return atomic.LoadUint64(&c.blk.Records)
}

// SnapshotPath is the snapshot file of the published generation, if any.
func (c *Controller) SnapshotPath() string {
	return cstring(c.blk.SnapshotPath[:])
}

func (c *Controller) GenerationID() string {
	return cstring(c.blk.GenerationID[:])
}

// Publish records a new live generation. seq must be increasing; a stale
// seq is rejected so a slow publisher cannot roll readers back.
func (c *Controller) Publish(seq uint64, genID, snapshot string, records uint64) error {
	if len(snapshot) >= len(c.blk.SnapshotPath) {
		return fmt.Errorf("snapshot path too long (max %d)", len(c.blk.SnapshotPath)-1)
	}
	if len(genID) >= len(c.blk.GenerationID) {
		return fmt.Errorf("generation id too long (max %d)", len(c.blk.GenerationID)-1)
	}
	if cur := c.Seq(); seq <= cur {
		return fmt.Errorf("stale generation seq %d (published %d)", seq, cur)
	}

	putCString(c.blk.SnapshotPath[:], snapshot)
	putCString(c.blk.GenerationID[:], genID)
	atomic.StoreUint64(&c.blk.Records, records)
	atomic.StoreUint64(&c.blk.Seq, seq)
	return unix.Msync(c.data, unix.MS_ASYNC)
}

func (c *Controller) Close() error {
	if err := unix.Munmap(c.data); err != nil {
		return err
	}
	return c.file.Close()
}

func cstring(b []byte) string {
	for i, v := range b {
		if v == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func putCString(dst []byte, s string) {
	n := copy(dst, s)
	clear(dst[n:])
}
