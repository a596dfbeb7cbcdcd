package entity

import (
	"path"
	"strings"
)

// FileRecord describes one file of a dataset, both as the repository
// lists it and as it exists locally.
type FileRecord struct {
	RemotePath     string `json:"remote_path"`
	RemoteSize     uint64 `json:"remote_size"`
	RemoteChecksum string `json:"remote_checksum"`
	LocalPath      string `json:"local_path"`
	LocalSize      uint64 `json:"local_size,omitempty"`
	LocalChecksum  string `json:"local_checksum,omitempty"`
	Extension      string `json:"extension"`
}

// Verified reports whether the local copy matches the remote description
func (r FileRecord) Verified() bool {
	return r.LocalChecksum != "" &&
		r.LocalSize == r.RemoteSize &&
		strings.EqualFold(r.LocalChecksum, r.RemoteChecksum)
}

// FileManifest is the ordered list of files of one dataset
type FileManifest []FileRecord

// TotalSize sums the remote sizes
func (m FileManifest) TotalSize() uint64 {
	var total uint64
	for _, r := range m {
		total += r.RemoteSize
	}
	return total
}

// ExtensionOf returns the extension of a remote path without the dot
func ExtensionOf(remotePath string) string {
	return strings.TrimPrefix(path.Ext(remotePath), ".")
}

// AcquisitionKey identifies one file transfer
type AcquisitionKey struct {
	Collection string
	Dataset    string
	Filename   string
}

// String renders the key for display
func (k AcquisitionKey) String() string {
	return k.Collection + "/" + k.Dataset + "/" + k.Filename
}

// AcquireStatus is the outcome of a transfer
type AcquireStatus int

const (
	AcquireCompleted AcquireStatus = iota
	AcquireSkipped
	// AcquireFailed marks a transfer that broke off, leaving a partial file
	AcquireFailed
)

func (s AcquireStatus) String() string {
	return [...]string{"completed", "skipped", "failed"}[s]
}

// AcquireResult describes a finished transfer
type AcquireResult struct {
	Key       AcquisitionKey
	LocalPath string
	Status    AcquireStatus
	Bytes     int64
}
