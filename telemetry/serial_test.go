package telemetry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Reading
		wantErr error
	}{
		{"String", `{"sensor":"temp","value":"21.5"}`, Reading{Sensor: "temp", Value: "21.5"}, nil},
		{"Number", `{"sensor":"temp","value":21.5}`, Reading{Sensor: "temp", Value: "21.5"}, nil},
		{"Bool", `{"sensor":"door","value":true}`, Reading{Sensor: "door", Value: "true"}, nil},
		{"Null", `{"sensor":"door","value":null}`, Reading{Sensor: "door"}, nil},
		{"NoValue", `{"sensor":"door"}`, Reading{Sensor: "door"}, nil},
		{"Nested", `{"sensor":"a/b","value":"1"}`, Reading{Sensor: "a/b", Value: "1"}, nil},
		{"NoSensor", `{"value":"21.5"}`, Reading{}, ErrNoSensor},
		{"EmptySensor", `{"sensor":"","value":"21.5"}`, Reading{}, ErrNoSensor},
		{"Wildcard", `{"sensor":"a/#","value":"1"}`, Reading{}, ErrInvalidSensor},
		{"Object", `{"sensor":"a","value":{"x":1}}`, Reading{}, ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.in))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Decode() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Decode() = %+v, want %+v", got, tt.want)
			}
		})
	}

	if _, err := Decode([]byte(`{"sensor":"temp","val`)); err == nil {
		t.Error("Decode(malformed) error = nil")
	}
}

func poll(t *testing.T, s Source) []Reading {
	t.Helper()
	r, err := s.Poll(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	return r
}

func TestSerialSource(t *testing.T) {
	var port bytes.Buffer
	s := NewSerialSource(&port, DefaultSize, 0)

	if r := poll(t, s); r != nil {
		t.Fatalf("Poll() on empty port = %v, want nil", r)
	}

	port.WriteString(`{"sensor":"temp","value":"21.5"}` + "\x00")
	r := poll(t, s)
	if len(r) != 1 {
		t.Fatalf("Poll() = %v, want 1 reading", r)
	}
	if got, want := r[0].Topic("sensors/home/study"), "sensors/home/study/temp"; got != want {
		t.Errorf("Topic() = %q, want %q", got, want)
	}
	if r[0].Value != "21.5" {
		t.Errorf("Value = %q, want %q", r[0].Value, "21.5")
	}
}

func TestSerialSourcePartial(t *testing.T) {
	var port bytes.Buffer
	s := NewSerialSource(&port, DefaultSize, 0)

	port.WriteString(`{"sensor":"hum`)
	if r := poll(t, s); r != nil {
		t.Fatalf("Poll() on partial message = %v, want nil", r)
	}
	port.WriteString(`","value":"45"}` + "\x00")
	r := poll(t, s)
	if len(r) != 1 || r[0].Sensor != "hum" || r[0].Value != "45" {
		t.Fatalf("Poll() = %v, want [hum=45]", r)
	}
}

func TestSerialSourceOneMessagePerPoll(t *testing.T) {
	port := strings.NewReader(`{"sensor":"a","value":"1"}` + "\x00" + `{"sensor":"b","value":"2"}` + "\x00")
	s := NewSerialSource(port, DefaultSize, 0)

	for _, want := range []string{"a", "b"} {
		r := poll(t, s)
		if len(r) != 1 || r[0].Sensor != want {
			t.Fatalf("Poll() = %v, want [%s=...]", r, want)
		}
	}
	if r := poll(t, s); r != nil {
		t.Fatalf("Poll() after all messages = %v, want nil", r)
	}
}

func TestSerialSourceMalformed(t *testing.T) {
	tests := []struct {
		name string
		bad  string
	}{
		{"Truncated", `{"sensor":"te`},
		{"NotJSON", `hello`},
		{"NoSensor", `{"value":"1"}`},
		{"Overflow", `{"sensor":"temperature","value":"21.5","unit":"C"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := strings.NewReader(tt.bad + "\x00" + `{"sensor":"temp","value":"21.5"}` + "\x00")
			s := NewSerialSource(port, DefaultSize, 0)

			if r := poll(t, s); r != nil {
				t.Fatalf("Poll() on %q = %v, want nil", tt.bad, r)
			}
			if s.buf.Len() != 0 {
				t.Fatalf("buffer not reset: %q", s.buf.Bytes())
			}
			r := poll(t, s)
			if len(r) != 1 || r[0].Sensor != "temp" || r[0].Value != "21.5" {
				t.Fatalf("Poll() after discard = %v, want [temp=21.5]", r)
			}
		})
	}
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func TestSerialSourceReadError(t *testing.T) {
	want := errors.New("device unplugged")
	s := NewSerialSource(errReader{want}, DefaultSize, 0)
	if _, err := s.Poll(context.Background(), time.Time{}); !errors.Is(err, want) {
		t.Fatalf("Poll() error = %v, want %v", err, want)
	}

	s = NewSerialSource(errReader{io.EOF}, DefaultSize, 0)
	if r := poll(t, s); r != nil {
		t.Fatalf("Poll() = %v, want nil", r)
	}
}

type closer struct {
	io.Reader
	closed bool
}

func (c *closer) Close() error {
	c.closed = true
	return nil
}

func TestSerialSourceClose(t *testing.T) {
	c := &closer{Reader: strings.NewReader("")}
	s := NewSerialSource(c, DefaultSize, 0)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if !c.closed {
		t.Error("Close() did not close the port")
	}
	if err := NewSerialSource(strings.NewReader(""), DefaultSize, 0).Close(); err != nil {
		t.Errorf("Close() without closer = %v", err)
	}
}

const port = "/dev/ttyUSB0"

type replug struct {
	ports []io.Reader
	err   error
	opens int
}

func (r *replug) open() (io.Reader, error) {
	r.opens++
	if r.err != nil {
		return nil, r.err
	}
	p := r.ports[0]
	r.ports = r.ports[1:]
	return p, nil
}

func TestSerialSourceReplug(t *testing.T) {
	old := &closer{Reader: strings.NewReader(`{"sensor":"te`)}
	plugged := &closer{Reader: strings.NewReader(`{"sensor":"temp","value":"21.5"}` + "\x00")}
	r := &replug{ports: []io.Reader{plugged}}
	events := make(chan fsnotify.Event, 4)

	s := NewSerialSource(old, DefaultSize, 0)
	s.follow(port, events, nil, r.open)

	if got := poll(t, s); got != nil {
		t.Fatalf("Poll() on partial message = %v, want nil", got)
	}

	events <- fsnotify.Event{Name: "/dev/ttyACM0", Op: fsnotify.Remove}
	events <- fsnotify.Event{Name: port, Op: fsnotify.Remove}
	if got := poll(t, s); got != nil {
		t.Fatalf("Poll() after removal = %v, want nil", got)
	}
	if !old.closed {
		t.Error("removed port was not closed")
	}
	if s.buf.Len() != 0 {
		t.Errorf("buffer not reset: %q", s.buf.Bytes())
	}
	if got := poll(t, s); got != nil || r.opens != 0 {
		t.Fatalf("Poll() while unplugged = %v, opens %d", got, r.opens)
	}

	events <- fsnotify.Event{Name: port, Op: fsnotify.Create}
	got := poll(t, s)
	if len(got) != 1 || got[0].Sensor != "temp" || got[0].Value != "21.5" {
		t.Fatalf("Poll() after replug = %v, want [temp=21.5]", got)
	}
	if r.opens != 1 {
		t.Errorf("opened %d times, want 1", r.opens)
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if !plugged.closed {
		t.Error("Close() did not close the reopened port")
	}
}

func TestSerialSourceReplugAfterError(t *testing.T) {
	want := errors.New("input/output error")
	r := &replug{err: errors.New("permission denied")}
	events := make(chan fsnotify.Event, 4)

	s := NewSerialSource(errReader{want}, DefaultSize, 0)
	s.follow(port, events, nil, r.open)

	if _, err := s.Poll(context.Background(), time.Time{}); !errors.Is(err, want) {
		t.Fatalf("Poll() error = %v, want %v", err, want)
	}
	if got := poll(t, s); got != nil {
		t.Fatalf("Poll() on lost port = %v, want nil", got)
	}

	events <- fsnotify.Event{Name: port, Op: fsnotify.Create}
	if got := poll(t, s); got != nil || r.opens != 1 {
		t.Fatalf("Poll() with failing open = %v, opens %d", got, r.opens)
	}

	r.err = nil
	r.ports = []io.Reader{strings.NewReader(`{"sensor":"hum","value":"45"}` + "\x00")}
	got := poll(t, s)
	if len(got) != 1 || got[0].Sensor != "hum" {
		t.Fatalf("Poll() after retry = %v, want [hum=45]", got)
	}
	if r.opens != 2 {
		t.Errorf("opened %d times, want 2", r.opens)
	}
}
