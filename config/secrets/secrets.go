// Package secrets resolves "!secret <name>" configuration values from
// docker-style secret files.
package secrets

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// DefaultDir is the directory secrets are read from unless
// $SENSORLINK_SECRETS_DIR is set.
const DefaultDir = "/run/secrets"

// Prefix is the the prefix of a string to indicate it should
// be substituted with the secret value. For example:
//
//	"!secret foo" -> /run/secrets/foo
const Prefix = "!secret "

// maxSize bounds the bytes read from a secret file.
const maxSize = 4096

// Dir returns the directory secrets are read from.
func Dir() string {
	if dir, ok := os.LookupEnv("SENSORLINK_SECRETS_DIR"); ok && dir != "" {
		return dir
	}
	return DefaultDir
}

// CutPrefix is equivalent to [strings.CutPrefix](s, [Prefix])
func CutPrefix(s string) (secret string, ok bool) {
	secret, ok = strings.CutPrefix(s, Prefix)
	return strings.TrimSpace(secret), ok
}

// Read returns the trimmed value of the secret file <dir>/<secret>.
// The secret name may not leave the secrets directory.
func Read(secret string) (string, error) {
	name := filepath.Join(Dir(), filepath.Clean("/"+secret))
	fd, err := unix.Open(name, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return "", &os.PathError{Op: "open", Path: name, Err: err}
	}
	defer unix.Close(fd)

	buf := make([]byte, maxSize)
	n, err := unix.Read(fd, buf)
	if err != nil {
		return "", &os.PathError{Op: "read", Path: name, Err: err}
	}
	return string(bytes.TrimSpace(buf[:n])), nil
}

// MustRead returns the value of the secret file <dir>/<secret>.
// If there is an error reading the file then MustRead returns fallback.
func MustRead(secret, fallback string) string {
	s, err := Read(secret)
	if err != nil {
		return fallback
	}
	return s
}
