package transport

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// Location schemes.
const (
	SchemeLocal = ""
	SchemeSFTP  = "sftp"
	SchemeS3    = "s3"
)

// Location represents a parsed source or destination argument.
type Location struct {
	Scheme string
	Host   string // ssh host, or bucket for s3
	User   string
	Path   string
}

// IsRemote returns true if the location refers to a remote store.
func (l Location) IsRemote() bool {
	return l.Host != ""
}

// IsS3 returns true if the location names an object in a bucket.
func (l Location) IsS3() bool {
	return l.Scheme == SchemeS3
}

// VolumeID returns the id of the volume serving this location. Locations on
// the same host (or bucket) share a volume.
func (l Location) VolumeID() string {
	switch {
	case l.IsS3():
		return "s3://" + l.Host
	case l.IsRemote() && l.User != "":
		return "sftp://" + l.User + "@" + l.Host
	case l.IsRemote():
		return "sftp://" + l.Host
	default:
		return "local"
	}
}

// String returns a human-readable representation.
func (l Location) String() string {
	if l.IsS3() {
		return "s3://" + l.Host + l.Path
	}
	if !l.IsRemote() {
		return l.Path
	}
	if l.User != "" {
		return fmt.Sprintf("%s@%s:%s", l.User, l.Host, l.Path)
	}
	return fmt.Sprintf("%s:%s", l.Host, l.Path)
}

// ParseLocation parses a CLI argument into a Location.
//
// Supported formats:
//   - /absolute/path                  → local
//   - relative/path                   → local
//   - host:path                       → SFTP remote (current user)
//   - user@host:path                  → SFTP remote
//   - user@host:/abs/path             → SFTP remote
//   - s3://bucket/key                 → S3 object or prefix
//
// Ambiguity rule: a bare "word" with no colon is always local. A path
// containing ":" is only treated as remote if the part before the colon
// contains no path separators (so "/foo:bar" and "./host:path" are local).
//
//nolint:revive // cognitive-complexity: location parsing handles multiple format variants
func ParseLocation(arg string) Location {
	if strings.HasPrefix(arg, "s3://") {
		return parseS3URL(arg)
	}

	// Absolute paths and paths starting with . are always local.
	if filepath.IsAbs(arg) || strings.HasPrefix(arg, "./") || strings.HasPrefix(arg, "../") {
		return Location{Path: arg}
	}

	colonIdx := strings.IndexByte(arg, ':')
	if colonIdx < 0 {
		return Location{Path: arg}
	}

	hostPart := arg[:colonIdx]
	pathPart := arg[colonIdx+1:]

	// "dir/file:with:colons" is local.
	if strings.ContainsRune(hostPart, filepath.Separator) || strings.ContainsRune(hostPart, '/') {
		return Location{Path: arg}
	}

	if hostPart == "" {
		return Location{Path: arg}
	}

	var user, host string
	if atIdx := strings.LastIndexByte(hostPart, '@'); atIdx >= 0 {
		user = hostPart[:atIdx]
		host = hostPart[atIdx+1:]
	} else {
		host = hostPart
	}

	if host == "" {
		return Location{Path: arg}
	}

	return Location{
		Scheme: SchemeSFTP,
		Host:   host,
		User:   user,
		Path:   pathPart,
	}
}

// parseS3URL parses s3://bucket[/key]. The key becomes a volume path.
func parseS3URL(raw string) Location {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return Location{Path: raw}
	}
	return Location{
		Scheme: SchemeS3,
		Host:   u.Host,
		Path:   path.Clean("/" + u.Path),
	}
}
