package mock

import "time"

var closed = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// Token is an already completed [mqtt.Token].
type Token struct {
	err error
}

func newToken(err error) *Token {
	return &Token{err: err}
}

func (t *Token) Wait() bool                     { return true }
func (t *Token) WaitTimeout(time.Duration) bool { return true }
func (t *Token) Done() <-chan struct{}          { return closed }
func (t *Token) Error() error                   { return t.err }
