package trth

import (
	"path/filepath"
	"regexp"
	"time"
)

const (
	// DefaultPartType replaces an empty part suffix, e.g. "x-N123456789.csv".
	DefaultPartType = "part000"

	// ReportPartType marks the manifest part written last by the extractor.
	ReportPartType = "report"
)

var namePattern = regexp.MustCompile(`-(N\d{9})(?:-(\w*))?\.(csv|txt)$`)

// RemoteFile is one entry of the HTTP-pull result listing.
type RemoteFile struct {
	Name      string
	RequestID string
	PartType  string
	Size      uint64
	Date      time.Time
}

// IsReport reports whether the file is the report part of its request.
func (f *RemoteFile) IsReport() bool {
	return f.PartType == ReportPartType
}

// DecodeName extracts the request id and part type from a listed file name.
func DecodeName(name string) (requestID, partType string, err error) {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return "", "", &DecodeError{Name: name}
	}

	partType = m[2]
	if partType == "" {
		partType = DefaultPartType
	}

	return m[1], partType, nil
}

// LocalName returns the canonical name a remote file is saved under:
// <request id>-<part type>.<ext>.
func LocalName(f *RemoteFile) string {
	return f.RequestID + "-" + f.PartType + filepath.Ext(f.Name)
}
