package probe

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrInvalidID is returned for strings that are not hostName__fileName@metricName.
var ErrInvalidID = errors.New("invalid probe ID (should be hostName__fileName@metricName)")

// ID is the parsed form of hostName__fileName@metricName.
type ID struct {
	Host   string
	File   string
	Metric string
}

func (id ID) String() string {
	return id.Host + "__" + id.File + "@" + id.Metric
}

// ParseID parses a probe ID. The host and file parts are separated by a
// single double underscore and the metric follows a single @.
func ParseID(s string) (ID, error) {
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 || strings.Count(s, "@") != 1 {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	left, metric, _ := strings.Cut(s, "@")
	if metric == "" || strings.Count(left, "__") != 1 {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	host, file, _ := strings.Cut(left, "__")
	if !validPart(host) || !validPart(file) {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return ID{Host: host, File: file, Metric: metric}, nil
}

// IsValidID reports whether s is a well-formed probe ID.
func IsValidID(s string) bool {
	_, err := ParseID(s)
	return err == nil
}

// validPart rejects empty parts and parts whose underscores would make the
// separator ambiguous.
func validPart(p string) bool {
	return p != "" && !strings.HasPrefix(p, "_") && !strings.HasSuffix(p, "_")
}
