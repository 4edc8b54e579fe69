// Package storage provides the tag-addressed persistent configuration store
// on top of LittleFS. Each tag is one small file holding a uint16, written
// atomically so a power loss mid-write leaves the previous value intact.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/config"
	"github.com/tuffrabit/tinygo-pedal-rp2040/pkg/logging"

	"tinygo.org/x/tinyfs"
	"tinygo.org/x/tinyfs/littlefs"
)

const (
	configDir  = "/config"
	tagsDir    = "/config/tags"
	tempSuffix = ".tmp"
	tagSuffix  = ".bin"
	wordSize   = 2
)

var (
	ErrWrite       = errors.New("config write failed")
	ErrInvalidWord = errors.New("invalid stored word")
	ErrFilesystem  = errors.New("filesystem error")
)

// Manager handles tag persistence using LittleFS.
type Manager struct {
	fs       *littlefs.LFS
	blockDev tinyfs.BlockDevice
	mounted  bool
}

// Stats provides information about storage usage.
type Stats struct {
	TotalSpace int64
	UsedSpace  int64
	FreeSpace  int64
	TagCount   int
}

// New initializes the storage system with the given block device.
// It mounts the filesystem and removes leftovers of interrupted writes.
// If format is true and mount fails, it will format the filesystem.
func New(blockDev tinyfs.BlockDevice, format bool) (*Manager, error) {
	lfs := littlefs.New(blockDev)

	// Conservative settings for RP2040 flash
	lfs.Configure(&littlefs.Config{
		CacheSize:     512,
		LookaheadSize: 128,
	})

	err := lfs.Mount()
	if err != nil {
		if !format {
			return nil, err
		}
		logging.Warn(logging.ComponentStorage, "mount failed, formatting", "err", err)
		if err := lfs.Format(); err != nil {
			return nil, err
		}
		if err := lfs.Mount(); err != nil {
			return nil, err
		}
	}

	m := &Manager{
		fs:       lfs,
		blockDev: blockDev,
		mounted:  true,
	}

	if err := m.bootCleanup(); err != nil {
		// still usable, stale temp files only cost space
		logging.Warn(logging.ComponentStorage, "boot cleanup failed", "err", err)
	}

	return m, nil
}

// NewVolatile returns a Manager backed by RAM. Values survive only until
// power off; the firmware falls back to it when flash cannot be mounted.
func NewVolatile() *Manager {
	m, err := New(tinyfs.NewMemoryDevice(256, 4096, 16), true)
	if err != nil {
		// A fresh memory device always formats.
		panic("storage: volatile store: " + err.Error())
	}
	return m
}

// Close unmounts the filesystem.
func (m *Manager) Close() error {
	if m.mounted {
		m.mounted = false
		return m.fs.Unmount()
	}
	return nil
}

// bootCleanup resolves temporary files left over from interrupted writes.
// A complete temp file whose target is missing or truncated is promoted;
// any other temp file is removed.
func (m *Manager) bootCleanup() error {
	entries, err := m.readDir(tagsDir)
	if err != nil {
		if isNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, tempSuffix) {
			continue
		}
		tempPath := path.Join(tagsDir, name)
		target := strings.TrimSuffix(tempPath, tempSuffix)
		if m.orphaned(tempPath, target) {
			if err := m.fs.Rename(tempPath, target); err == nil {
				logging.Warn(logging.ComponentStorage, "recovered interrupted write", "path", target)
				continue
			}
		}
		m.fs.Remove(tempPath)
	}
	return nil
}

// orphaned reports whether tempPath holds a full word and target does not.
func (m *Manager) orphaned(tempPath, target string) bool {
	if _, err := m.readFile(target); err == nil {
		return false
	}
	_, err := m.readFile(tempPath)
	return err == nil
}

func (m *Manager) readFile(filepath string) (uint16, error) {
	f, err := m.fs.Open(filepath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	buf := make([]byte, wordSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return 0, ErrInvalidWord
	}
	return config.DecodeWord(buf)
}

// readDir reads the directory entries at the given path.
func (m *Manager) readDir(dirPath string) ([]os.FileInfo, error) {
	f, err := m.fs.Open(dirPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if !f.IsDir() {
		return nil, errors.New("not a directory")
	}

	return f.Readdir(-1)
}

// ensureDirs creates the config directories if they don't exist.
func (m *Manager) ensureDirs() error {
	if err := m.fs.Mkdir(configDir, 0755); err != nil && !isExist(err) {
		return err
	}
	if err := m.fs.Mkdir(tagsDir, 0755); err != nil && !isExist(err) {
		return err
	}
	return nil
}

// isExist checks if an error is "already exists".
// LittleFS errors don't always match os.IsExist, so we check the message too.
func isExist(err error) bool {
	if err == nil {
		return false
	}
	if os.IsExist(err) {
		return true
	}
	return strings.Contains(err.Error(), "already exists")
}

func isNotExist(err error) bool {
	if err == nil {
		return false
	}
	if os.IsNotExist(err) {
		return true
	}
	return strings.Contains(err.Error(), "No directory entry")
}

// ReadU16 returns the word stored under tag. A tag that was never written,
// a truncated file or any medium error yields def; the fault is not reported.
func (m *Manager) ReadU16(tag config.Tag, def uint16) uint16 {
	v, err := m.readWord(tag)
	if err != nil {
		if !isNotExist(err) {
			logging.Debug(logging.ComponentStorage, "read fell back to default", "tag", uint8(tag), "err", err)
		}
		return def
	}
	return v
}

func (m *Manager) readWord(tag config.Tag) (uint16, error) {
	return m.readFile(m.tagPath(tag))
}

// WriteU16 stores v under tag atomically. Any failure is wrapped in ErrWrite.
func (m *Manager) WriteU16(tag config.Tag, v uint16) error {
	if err := m.ensureDirs(); err != nil {
		return fmt.Errorf("%w: tag 0x%02x: %w", ErrWrite, uint8(tag), err)
	}
	if err := m.atomicWrite(m.tagPath(tag), config.EncodeWord(v)); err != nil {
		return fmt.Errorf("%w: tag 0x%02x: %w", ErrWrite, uint8(tag), err)
	}
	return nil
}

// Delete removes the value stored under tag.
func (m *Manager) Delete(tag config.Tag) error {
	return m.fs.Remove(m.tagPath(tag))
}

// Tags returns every tag that currently holds a value.
func (m *Manager) Tags() ([]config.Tag, error) {
	entries, err := m.readDir(tagsDir)
	if err != nil {
		if isNotExist(err) {
			return []config.Tag{}, nil
		}
		return nil, err
	}

	var tags []config.Tag
	for _, entry := range entries {
		name := entry.Name()
		// Parse "NN.bin" format
		if !strings.HasSuffix(name, tagSuffix) {
			continue
		}
		num := strings.TrimSuffix(name, tagSuffix)
		if n, err := strconv.ParseUint(num, 16, 8); err == nil {
			tags = append(tags, config.Tag(n))
		}
	}
	return tags, nil
}

// GetStats returns storage statistics.
func (m *Manager) GetStats() (*Stats, error) {
	tags, err := m.Tags()
	if err != nil {
		return nil, err
	}

	// LittleFS has no free space call. Each tag is 2 bytes of data plus
	// roughly 32 bytes of metadata; directories add about 100 bytes.
	used := int64(len(tags)*34 + 100)
	total := m.blockDev.Size()

	return &Stats{
		TotalSpace: total,
		UsedSpace:  used,
		FreeSpace:  total - used,
		TagCount:   len(tags),
	}, nil
}

// tagPath returns the filesystem path for a tag.
func (m *Manager) tagPath(tag config.Tag) string {
	name := strconv.FormatUint(uint64(tag), 16)
	if len(name) < 2 {
		name = "0" + name
	}
	return path.Join(tagsDir, name+tagSuffix)
}

// atomicWrite writes data to a temporary file, syncs it, then renames.
// The original file is never in a partially written state.
func (m *Manager) atomicWrite(filepath string, data []byte) error {
	tempPath := filepath + tempSuffix

	m.fs.Remove(tempPath)

	f, err := m.fs.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		m.fs.Remove(tempPath)
		return err
	}

	// Sync ensures data hits flash
	if syncer, ok := f.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			f.Close()
			m.fs.Remove(tempPath)
			return err
		}
	}

	if err := f.Close(); err != nil {
		m.fs.Remove(tempPath)
		return err
	}

	// littlefs rename replaces the target in one commit
	if err := m.fs.Rename(tempPath, filepath); err != nil {
		m.fs.Remove(tempPath)
		return err
	}

	return nil
}

// ForceWipe removes every stored tag.
func (m *Manager) ForceWipe() error {
	tags, err := m.Tags()
	if err != nil {
		return err
	}
	for _, tag := range tags {
		if err := m.Delete(tag); err != nil {
			return fmt.Errorf("%w: %w", ErrFilesystem, err)
		}
	}
	return nil
}
