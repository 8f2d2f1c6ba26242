// Package sysfs provides the few files in /sys used by sensorlink: network
// interface state and LED brightness.
package sysfs

import (
	"bytes"
	"os"
	"path/filepath"
)

const MountPath = "sys"

const (
	classPath    = MountPath + string(filepath.Separator) + "class"
	netClassPath = classPath + string(filepath.Separator) + "net"  // /sys/class/net
	ledClassPath = classPath + string(filepath.Separator) + "leds" // /sys/class/leds
)

var root = "/"

func init() {
	if s, ok := os.LookupEnv("SENSORLINK_ROOTFS_PATH"); ok && len(s) > 0 {
		root = s
	}
}

// SetRoot sets the directory that /sys is resolved against. It returns
// the previous root.
func SetRoot(dir string) string {
	old := root
	root = dir
	return old
}

// Path returns the path of /sys/<elem...> relative to the current root.
func Path(elem ...string) string {
	return filepath.Join(append([]string{root, MountPath}, elem...)...)
}

// ReadString returns the trimmed contents of the file at path, which is
// relative to /sys.
func ReadString(elem ...string) (string, error) {
	b, err := os.ReadFile(Path(elem...))
	if err != nil {
		return "", err
	}
	return string(bytes.TrimSpace(b)), nil
}

// WriteString writes s to the existing file at path, which is relative to /sys.
func WriteString(s string, elem ...string) error {
	f, err := os.OpenFile(Path(elem...), os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	if _, err = f.WriteString(s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// OperState returns the contents of /sys/class/net/<iface>/operstate,
// i.e. "up", "down", "dormant" or "unknown".
func OperState(iface string) (string, error) {
	return ReadString("class", "net", iface, "operstate")
}

// NetDevices returns the names of the entries in /sys/class/net.
func NetDevices() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(root, netClassPath))
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}

// SetLED sets /sys/class/leds/<name>/brightness to max_brightness if on,
// or 0 otherwise.
func SetLED(name string, on bool) error {
	val := "0"
	if on {
		val = "1"
		if max, err := ReadString("class", "leds", name, "max_brightness"); err == nil && max != "" {
			val = max
		}
	}
	return WriteString(val, "class", "leds", name, "brightness")
}

// LEDExists reports whether /sys/class/leds/<name> exists.
func LEDExists(name string) bool {
	_, err := os.Stat(filepath.Join(root, ledClassPath, name))
	return err == nil
}
