package common

import (
	"github.com/google/uuid"
)

// NewScanID generates a unique scan ID with the "scan_" prefix
// Format: scan_<uuid>
func NewScanID() string {
	return "scan_" + uuid.New().String()
}

// NewInstanceID generates a unique server instance ID
func NewInstanceID() string {
	return uuid.New().String()
}
