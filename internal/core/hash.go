package core

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strconv"
	"strings"
	"time"
)

// ErrHashFailed is returned when any of the protection hashes cannot be computed.
var ErrHashFailed = errors.New("hash generation failed")

const (
	// FloralPrefix is the literal every floral hash starts with.
	FloralPrefix = "0xFLORAL"
	// FloralFragmentLen is how many legal-hash characters follow FloralPrefix.
	FloralFragmentLen = 8

	contentHexLen       = 16
	contentSampleBytes  = 100
	checksumSampleBytes = 1000
)

// ContentMode selects how the content hash is derived.
type ContentMode int

const (
	// ContentProperties digests file properties plus the first bytes of the file.
	ContentProperties ContentMode = iota
	// ContentChecksum sums the first bytes of the file modulo 2^64.
	ContentChecksum
)

func (m ContentMode) String() string {
	switch m {
	case ContentChecksum:
		return "checksum"
	default:
		return "properties"
	}
}

// ParseContentMode maps a configuration value onto a ContentMode.
func ParseContentMode(s string) (ContentMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "properties":
		return ContentProperties, nil
	case "checksum":
		return ContentChecksum, nil
	default:
		return ContentProperties, fmt.Errorf("unknown content hash mode %q", s)
	}
}

// FileMeta describes the file a set of hashes was derived from.
type FileMeta struct {
	Name         string
	Size         int64
	MimeType     string
	LastModified time.Time
}

// Hashes is the triple of identifiers derived for one upload attempt.
type Hashes struct {
	Legal   string `json:"legal"`
	Content string `json:"content"`
	Floral  string `json:"floral"`
}

// DeriveHashes computes the legal, content and floral hashes of data.
// The three values are computed independently; the floral hash only
// reuses the legal digest as its fragment source.
func DeriveHashes(data []byte, meta FileMeta, mode ContentMode) (Hashes, error) {
	legal, err := LegalHash(data)
	if err != nil {
		return Hashes{}, err
	}

	var content string
	switch mode {
	case ContentChecksum:
		content = ChecksumHash(data)
	default:
		content, err = ContentHash(data, meta)
		if err != nil {
			return Hashes{}, err
		}
	}

	return Hashes{
		Legal:   legal,
		Content: content,
		Floral:  FloralHash(legal),
	}, nil
}

// LegalHash returns the hex-encoded SHA-256 digest of data.
func LegalHash(data []byte) (string, error) {
	return digestHex(sha256.New(), data)
}

// ContentHash digests "name-size-type-lastModified" followed by the decimal
// values of the first 100 bytes, and keeps the first 16 hex characters.
// It is a placeholder identifier, not a perceptual hash.
func ContentHash(data []byte, meta FileMeta) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s-%d-%s-%d", meta.Name, meta.Size, meta.MimeType, meta.LastModified.UnixMilli())

	sample := data
	if len(sample) > contentSampleBytes {
		sample = sample[:contentSampleBytes]
	}
	for _, v := range sample {
		b.WriteString(strconv.Itoa(int(v)))
	}

	sum, err := digestHex(sha256.New(), []byte(b.String()))
	if err != nil {
		return "", err
	}
	return "0x" + sum[:contentHexLen], nil
}

// ChecksumHash adds up the first 1000 bytes of data, wrapping at 2^64.
func ChecksumHash(data []byte) string {
	sample := data
	if len(sample) > checksumSampleBytes {
		sample = sample[:checksumSampleBytes]
	}

	var sum uint64
	for _, v := range sample {
		sum += uint64(v)
	}
	return fmt.Sprintf("0x%016x", sum)
}

// FloralHash decorates a legal hash. It carries no information of its own.
func FloralHash(legal string) string {
	fragment := legal
	if len(fragment) > FloralFragmentLen {
		fragment = fragment[:FloralFragmentLen]
	}
	return FloralPrefix + fragment
}

func digestHex(h hash.Hash, data []byte) (string, error) {
	if _, err := h.Write(data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrHashFailed, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
