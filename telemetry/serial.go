package telemetry

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	jsoniter "github.com/json-iterator/go"
	"github.com/tarm/serial"

	"github.com/lone-faerie/sensorlink/config"
	"github.com/lone-faerie/sensorlink/log"
)

var (
	ErrNoSensor      = errors.New("missing sensor")
	ErrInvalidSensor = errors.New("invalid sensor")
	ErrInvalidValue  = errors.New("value is not a scalar")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SerialSource reads NUL-terminated JSON messages of the form
// {"sensor": "<name>", "value": "<payload>"} from a serial port.
//
// A source opened with [OpenSerial] follows its device node: when the node
// is removed the port is closed, and when it is created again the port is
// reopened.
type SerialSource struct {
	r    *bufio.Reader
	c    io.Closer
	buf  *Buffer
	term byte

	name    string
	open    func() (io.Reader, error)
	watcher *fsnotify.Watcher
	events  <-chan fsnotify.Event
	errs    <-chan error
	lost    bool
	pending bool
}

// NewSerialSource returns a SerialSource reading messages of at most size-1
// bytes followed by term from r. If r is an [io.Closer] it is closed by
// [SerialSource.Close].
func NewSerialSource(r io.Reader, size int, term byte) *SerialSource {
	s := &SerialSource{
		r:    bufio.NewReader(r),
		buf:  NewBuffer(size),
		term: term,
	}
	s.setCloser(r)
	return s
}

func (s *SerialSource) setCloser(r io.Reader) {
	s.c = nil
	if c, ok := r.(io.Closer); ok {
		s.c = c
	}
}

// OpenSerial opens the serial port given by cfg. Reads time out after
// cfg.ReadTimeout so polling never blocks on a quiet port. The directory of
// the port is watched so an unplugged device is picked up again once it
// reappears.
func OpenSerial(cfg config.SerialConfig) (*SerialSource, error) {
	open := func() (io.Reader, error) {
		return serial.OpenPort(&serial.Config{
			Name:        cfg.Port,
			Baud:        cfg.Baud,
			ReadTimeout: cfg.ReadTimeout,
		})
	}
	port, err := open()
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", cfg.Port, err)
	}
	log.Info("Serial port opened", "port", cfg.Port, "baud", cfg.Baud)

	s := NewSerialSource(port, cfg.BufferSize, cfg.Terminator)

	w, err := fsnotify.NewWatcher()
	if err == nil {
		err = w.Add(filepath.Dir(cfg.Port))
		if err != nil {
			w.Close()
		}
	}
	if err != nil {
		log.WarnError("Unable to watch serial port", err, "port", cfg.Port)
		return s, nil
	}
	s.watcher = w
	s.follow(cfg.Port, w.Events, w.Errors, open)
	return s, nil
}

// follow makes s track the device node name, reopening the port with open
// when a Create event for name arrives on events.
func (s *SerialSource) follow(name string, events <-chan fsnotify.Event, errs <-chan error, open func() (io.Reader, error)) {
	s.name = filepath.Clean(name)
	s.events = events
	s.errs = errs
	s.open = open
}

// watch drains the pending watcher events without blocking.
func (s *SerialSource) watch() {
	for {
		select {
		case e, ok := <-s.events:
			if !ok {
				s.events = nil
				continue
			}
			if filepath.Clean(e.Name) != s.name {
				continue
			}
			switch {
			case e.Has(fsnotify.Remove) || e.Has(fsnotify.Rename):
				s.pending = false
				s.drop(nil)
			case e.Has(fsnotify.Create):
				s.pending = true
			}
		case err, ok := <-s.errs:
			if !ok {
				s.errs = nil
				continue
			}
			log.WarnError("Serial port watcher", err, "port", s.name)
		default:
			return
		}
	}
}

// drop closes the current port. Bytes of a partial message are discarded.
func (s *SerialSource) drop(cause error) {
	if s.lost {
		return
	}
	s.lost = true
	s.buf.Reset()
	if s.c != nil {
		s.c.Close()
		s.c = nil
	}
	if cause != nil {
		log.WarnError("Serial port lost", cause, "port", s.name)
	} else {
		log.Warn("Serial port removed", "port", s.name)
	}
}

// reopen opens the port again after its device node was created.
func (s *SerialSource) reopen() {
	port, err := s.open()
	if err != nil {
		log.Debug("Unable to reopen serial port", "port", s.name, "cause", err)
		return
	}
	s.r.Reset(port)
	s.setCloser(port)
	s.lost = false
	s.pending = false
	log.Info("Serial port reopened", "port", s.name)
}

// noData reports whether err only means nothing is available to read yet.
func noData(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrNoProgress) ||
		errors.Is(err, os.ErrDeadlineExceeded)
}

// Poll consumes the bytes currently available until a message is complete.
// At most one reading is returned per call; bytes after the terminator are
// left for the next call. Malformed messages are logged and discarded.
func (s *SerialSource) Poll(ctx context.Context, _ time.Time) ([]Reading, error) {
	if s.open != nil {
		s.watch()
		if s.pending {
			if !s.lost {
				s.drop(nil)
			}
			s.reopen()
		}
		if s.lost {
			return nil, nil
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c, err := s.r.ReadByte()
		if err != nil {
			if noData(err) {
				return nil, nil
			}
			if s.open != nil {
				s.drop(err)
			}
			return nil, err
		}

		if c != s.term {
			s.buf.WriteByte(c)
			continue
		}

		r, ok := s.complete()
		if !ok {
			return nil, nil
		}
		return []Reading{r}, nil
	}
}

func (s *SerialSource) complete() (Reading, bool) {
	defer s.buf.Reset()

	if s.buf.Truncated() {
		log.Warn("Serial message truncated", "size", s.buf.Cap(), "dropped", s.buf.Dropped())
	}

	msg := s.buf.Terminate(s.term)
	log.Info("Received telemetry", "data", string(msg))

	r, err := Decode(msg)
	if err != nil {
		log.WarnError("Discarding telemetry", err, "data", string(msg))
		return Reading{}, false
	}
	return r, true
}

// Close closes the underlying port and stops watching it.
func (s *SerialSource) Close() error {
	var errs []error
	if s.watcher != nil {
		errs = append(errs, s.watcher.Close())
	}
	if s.c != nil {
		errs = append(errs, s.c.Close())
		s.c = nil
	}
	return errors.Join(errs...)
}

type message struct {
	Sensor string             `json:"sensor"`
	Value  jsoniter.RawMessage `json:"value"`
}

// Decode parses a serial message. The value may be a JSON string or any
// other scalar, which is kept as its literal text.
func Decode(data []byte) (Reading, error) {
	var m message
	if err := json.Unmarshal(data, &m); err != nil {
		return Reading{}, err
	}

	if m.Sensor == "" {
		return Reading{}, ErrNoSensor
	}
	if strings.ContainsAny(m.Sensor, "+#\x00") {
		return Reading{}, fmt.Errorf("%w %q", ErrInvalidSensor, m.Sensor)
	}

	value, err := scalar(m.Value)
	if err != nil {
		return Reading{}, err
	}

	return Reading{Sensor: m.Sensor, Value: value}, nil
}

func scalar(raw jsoniter.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	case '{', '[':
		return "", ErrInvalidValue
	case 'n':
		return "", nil
	}
	return string(raw), nil
}
