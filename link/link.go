// Package link waits for the network link the broker is reached through.
package link

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"

	"github.com/lone-faerie/sensorlink/config"
	"github.com/lone-faerie/sensorlink/internal/sysfs"
	"github.com/lone-faerie/sensorlink/log"
)

// ErrDown is returned by [Link.Up] while the link is not usable.
var ErrDown = errors.New("link down")

// Link is a network link.
type Link interface {
	// Up returns nil if the link is up, or an error wrapping ErrDown.
	Up(ctx context.Context) error
}

// arphrdLoopback is the value of /sys/class/net/<iface>/type for loopback.
const arphrdLoopback = "772"

// Sysfs is a Link whose state is read from /sys/class/net.
type Sysfs struct {
	iface string
	addrs func(iface string) ([]string, error)
	name  string
}

// New returns the link given by cfg. If cfg.Interface is blank the link is
// up once any non-loopback interface is.
func New(cfg config.LinkConfig) *Sysfs {
	return &Sysfs{
		iface: cfg.Interface,
		addrs: interfaceAddrs,
	}
}

// Name returns the interface found up by the last call to Up.
func (l *Sysfs) Name() string {
	return l.name
}

func (l *Sysfs) Up(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var candidates []string
	if l.iface != "" {
		candidates = []string{l.iface}
	} else {
		names, err := sysfs.NetDevices()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDown, err)
		}
		candidates = slices.DeleteFunc(names, isLoopback)
	}

	var errs []error
	for _, name := range candidates {
		addrs, err := l.check(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if l.name != name {
			log.Info("Link up", "interface", name, "addrs", addrs)
			l.name = name
		}
		return nil
	}
	l.name = ""

	if len(errs) == 0 {
		return fmt.Errorf("%w: no network interfaces", ErrDown)
	}
	return fmt.Errorf("%w: %w", ErrDown, errors.Join(errs...))
}

func (l *Sysfs) check(name string) ([]string, error) {
	state, err := sysfs.OperState(name)
	if err != nil {
		return nil, err
	}

	switch state {
	case "up":
		addrs, _ := l.addrs(name)
		return addrs, nil
	case "unknown":
		// Drivers that do not report operstate are up once addressed.
		addrs, err := l.addrs(name)
		if err == nil && len(addrs) > 0 {
			return addrs, nil
		}
	}
	return nil, fmt.Errorf("%s is %s", name, state)
}

func isLoopback(name string) bool {
	typ, err := sysfs.ReadString("class", "net", name, "type")
	if err != nil {
		return name == "lo"
	}
	return typ == arphrdLoopback
}

func interfaceAddrs(name string) ([]string, error) {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, err
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return nil, err
	}
	s := make([]string, len(addrs))
	for i, a := range addrs {
		s[i] = a.String()
	}
	return s, nil
}

type always struct{}

// Always returns a Link that is always up, for hosts where the link is
// managed elsewhere.
func Always() Link {
	return always{}
}

func (always) Up(ctx context.Context) error {
	return ctx.Err()
}
