package models

import (
	"path"
	"strings"
	"time"
)

// Build artifact filenames look like omni-<version>-<date>-<device>-<variant>.zip.
const (
	buildDateTimeLayout = "20060102_1504"
	buildDateLayout     = "20060102"
)

// Build is one artifact from the build snapshot feed.
type Build struct {
	Filename  string `json:"filename"`
	Timestamp int64  `json:"timestamp"`
	Size      int64  `json:"size"`
}

func (b *Build) field(i int) string {
	parts := strings.Split(b.Filename, "-")
	if i >= len(parts) {
		return ""
	}
	return parts[i]
}

// Version returns the version field, or "0" if the filename has none.
func (b *Build) Version() string {
	if v := b.field(1); v != "" {
		return v
	}
	return "0"
}

// Date returns the raw date field of the filename.
func (b *Build) Date() string {
	return b.field(2)
}

// Device returns the device code encoded in the filename.
func (b *Build) Device() string {
	return b.field(3)
}

// Variant returns the build type (e.g. WEEKLY, GAPPS) without the extension.
func (b *Build) Variant() string {
	v := b.field(4)
	return strings.TrimSuffix(v, path.Ext(v))
}

// BuildTime returns the build time parsed from the filename date, falling
// back to the snapshot timestamp when the date cannot be parsed.
func (b *Build) BuildTime() time.Time {
	if d := b.Date(); d != "" {
		if t, err := time.Parse(buildDateTimeLayout, d); err == nil {
			return t
		}
		if t, err := time.Parse(buildDateLayout, d); err == nil {
			return t
		}
	}
	return time.Unix(b.Timestamp, 0).UTC()
}

// SizeMB returns the artifact size in whole megabytes.
func (b *Build) SizeMB() int64 {
	return b.Size / 1024 / 1024
}
