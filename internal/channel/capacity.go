package channel

import "fmt"

// Capacity is the computed usage view of a channel against configured limits.
type Capacity struct {
	FileCount        int
	MaxFiles         int
	FileUsagePercent float64
	SizeBytes        int64
	MaxSizeBytes     int64
	SizeUsagePercent float64
	CanUpload        bool
	RemainingFiles   int
	RemainingBytes   int64
}

// CapacityError reports an upload rejected by capacity enforcement.
// It carries current-vs-limit detail so callers can render a useful message.
type CapacityError struct {
	Kind     string // "files" or "bytes"
	Current  int64
	Limit    int64
	Incoming int64 // size of the rejected file, 0 for the files axis
}

func (e *CapacityError) Error() string {
	if e.Kind == "files" {
		return fmt.Sprintf("channel file limit reached: %d of %d files", e.Current, e.Limit)
	}
	return fmt.Sprintf("channel size limit exceeded: %d bytes used of %d, incoming file is %d bytes",
		e.Current, e.Limit, e.Incoming)
}

// ComputeUsage derives a Capacity snapshot from a channel's cached counters.
// A zero limit yields 0% usage and blocks uploads (never divides by zero).
func ComputeUsage(fileCount int, sizeBytes int64, maxFiles int, maxSizeBytes int64) Capacity {
	u := Capacity{
		FileCount:    fileCount,
		MaxFiles:     maxFiles,
		SizeBytes:    sizeBytes,
		MaxSizeBytes: maxSizeBytes,
	}

	if maxFiles > 0 {
		u.FileUsagePercent = float64(fileCount) / float64(maxFiles) * 100
	}
	if maxSizeBytes > 0 {
		u.SizeUsagePercent = float64(sizeBytes) / float64(maxSizeBytes) * 100
	}

	u.CanUpload = fileCount < maxFiles && sizeBytes < maxSizeBytes
	u.RemainingFiles = max(0, maxFiles-fileCount)
	u.RemainingBytes = max(0, maxSizeBytes-sizeBytes)
	return u
}

// ValidateUpload decides whether one more file of the given size may be
// admitted. Returns a *CapacityError describing the violated axis, or nil.
// Zero-byte files are valid and count against the file limit only.
func ValidateUpload(usage Capacity, incomingSizeBytes int64) error {
	if usage.FileCount >= usage.MaxFiles {
		return &CapacityError{
			Kind:    "files",
			Current: int64(usage.FileCount),
			Limit:   int64(usage.MaxFiles),
		}
	}
	if usage.SizeBytes+incomingSizeBytes > usage.MaxSizeBytes {
		return &CapacityError{
			Kind:     "bytes",
			Current:  usage.SizeBytes,
			Limit:    usage.MaxSizeBytes,
			Incoming: incomingSizeBytes,
		}
	}
	return nil
}
