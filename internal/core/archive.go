package core

// archive.go relocates a fully persisted file into the archive directory.
//
// A same-filesystem rename is atomic. When the archive lives on another
// filesystem (a network share is common on instrument PCs) the file is copied
// to a temporary name, fsynced, verified by size and SHA-256, renamed into
// place, and only then removed from the inbox. A crash at any point leaves
// the file in the inbox, in both directories, or only in the archive; it is
// never lost.

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// ArchiveMover moves processed files out of the inbox.
type ArchiveMover struct {
	// rename is os.Rename; tests replace it to simulate cross-device moves.
	rename func(oldpath, newpath string) error
}

// NewArchiveMover returns a mover backed by the real filesystem.
func NewArchiveMover() *ArchiveMover {
	return &ArchiveMover{rename: os.Rename}
}

// Move relocates src into destDir keeping its base name.
func (m *ArchiveMover) Move(src, destDir string) error {
	name := filepath.Base(src)
	dest := filepath.Join(destDir, name)

	if _, err := os.Stat(dest); err == nil {
		// Left behind by an interrupted copy: finish the move only if the
		// archived bytes are the same as the inbox bytes.
		same, err := sameContent(src, dest)
		if err != nil {
			return &MoveError{File: name, Dest: destDir, Err: err}
		}
		if !same {
			return &MoveError{File: name, Dest: destDir, Err: errors.New("a different file with this name is already archived")}
		}
		if err := os.Remove(src); err != nil {
			return &MoveError{File: name, Dest: destDir, Err: err}
		}
		return nil
	}

	err := m.rename(src, dest)
	if err == nil {
		return nil
	}
	if !isCrossDevice(err) {
		return &MoveError{File: name, Dest: destDir, Err: err}
	}

	if err := copyVerified(src, dest); err != nil {
		return &MoveError{File: name, Dest: destDir, Err: err}
	}
	if err := os.Remove(src); err != nil {
		return &MoveError{File: name, Dest: destDir, Err: fmt.Errorf("archived copy written but inbox file not removed: %w", err)}
	}
	return nil
}

func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		err = linkErr.Err
	}
	return errors.Is(err, syscall.EXDEV)
}

// copyVerified copies src next to dest, checks it, then renames it into place.
func copyVerified(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	tmp := dest + ".partial"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	srcHash := sha256.New()
	written, err := io.Copy(out, io.TeeReader(in, srcHash))
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("copy: %w", err)
	}

	if written != info.Size() {
		os.Remove(tmp)
		return fmt.Errorf("copy size mismatch: wrote %d of %d bytes", written, info.Size())
	}

	copyHash, err := fileHash(tmp)
	if err != nil {
		os.Remove(tmp)
		return err
	}
	if !bytes.Equal(copyHash, srcHash.Sum(nil)) {
		os.Remove(tmp)
		return errors.New("copy checksum mismatch")
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func sameContent(a, b string) (bool, error) {
	ai, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	if ai.Size() != bi.Size() {
		return false, nil
	}
	ah, err := fileHash(a)
	if err != nil {
		return false, err
	}
	bh, err := fileHash(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ah, bh), nil
}

func fileHash(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
