// Package fingerprint computes the two digests used for duplicate detection:
// a quick boundary digest for cheap candidate grouping and a full-content
// strong digest for confirmation.
package fingerprint

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
)

const (
	// ChunkSize is the number of bytes read from each end of a file for the
	// quick digest.
	ChunkSize = 4096

	// WholeContentThreshold is the size at or below which the quick digest
	// covers the entire content. Truncating tiny files saves nothing and
	// raises the false-positive risk.
	WholeContentThreshold = 64

	// strongBlockSize is the read buffer for the streamed strong digest.
	strongBlockSize = 64 * 1024
)

// Expected reports whether err is an anticipated per-file condition
// (permission denied, vanished file) that callers count and skip rather than
// abort on.
func Expected(err error) bool {
	return errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrNotExist)
}

// Quick computes the fast non-cryptographic fingerprint of a file: an MD5
// over the decimal byte length, the first ChunkSize bytes, and — when the
// file exceeds twice ChunkSize — the last ChunkSize bytes. Files at or below
// WholeContentThreshold are digested over their entire content.
//
// All I/O failures are returned as errors, never panics; use Expected to
// separate routine per-file conditions from real faults.
func Quick(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	size := info.Size()

	h := md5.New()
	io.WriteString(h, strconv.FormatInt(size, 10))

	if size <= WholeContentThreshold {
		if _, err := io.Copy(h, f); err != nil {
			return "", fmt.Errorf("reading %s: %w", path, err)
		}
		return hex.EncodeToString(h.Sum(nil)), nil
	}

	if _, err := io.CopyN(h, f, min(size, ChunkSize)); err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	if size > 2*ChunkSize {
		if _, err := f.Seek(-ChunkSize, io.SeekEnd); err != nil {
			return "", fmt.Errorf("seeking %s: %w", path, err)
		}
		if _, err := io.CopyN(h, f, ChunkSize); err != nil {
			return "", fmt.Errorf("reading %s: %w", path, err)
		}
	} else {
		// Between the threshold and 2*ChunkSize: digest the remainder so the
		// fingerprint still covers every byte.
		if _, err := io.Copy(h, f); err != nil {
			return "", fmt.Errorf("reading %s: %w", path, err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Strong computes the SHA-256 of the entire file content, streamed in fixed
// blocks. Used only to confirm a quick-fingerprint match when definitive
// confirmation is required.
func Strong(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, strongBlockSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// GroupKey builds the composite duplicate-grouping key. Grouping always keys
// on size and quick value jointly, never the fingerprint alone.
func GroupKey(size int64, quickValue string) string {
	return strconv.FormatInt(size, 10) + ":" + quickValue
}

// Compare reports whether two files are exact duplicates using a three-stage
// short circuit: size equality, quick fingerprint equality, then strong
// fingerprint equality. The returned reason names the first mismatching
// stage; it is "strong fingerprint match" only when all three agree.
func Compare(pathA, pathB string) (bool, string, error) {
	infoA, err := os.Stat(pathA)
	if err != nil {
		return false, "", err
	}
	infoB, err := os.Stat(pathB)
	if err != nil {
		return false, "", err
	}
	if infoA.Size() != infoB.Size() {
		return false, "size mismatch", nil
	}

	quickA, err := Quick(pathA)
	if err != nil {
		return false, "", fmt.Errorf("quick fingerprint of %s: %w", pathA, err)
	}
	quickB, err := Quick(pathB)
	if err != nil {
		return false, "", fmt.Errorf("quick fingerprint of %s: %w", pathB, err)
	}
	if quickA != quickB {
		return false, "quick fingerprint mismatch", nil
	}

	strongA, err := Strong(pathA)
	if err != nil {
		return false, "", fmt.Errorf("strong fingerprint of %s: %w", pathA, err)
	}
	strongB, err := Strong(pathB)
	if err != nil {
		return false, "", fmt.Errorf("strong fingerprint of %s: %w", pathB, err)
	}
	if strongA != strongB {
		// A quick collision: same boundary bytes, different content.
		return false, "strong fingerprint mismatch", nil
	}

	return true, "strong fingerprint match", nil
}
