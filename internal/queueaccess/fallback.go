package queueaccess

import (
	"errors"
	"fmt"

	"voicenotes/internal/ipc"
	"voicenotes/internal/queue"
)

// ErrNoBackend is returned when neither the daemon nor the store can be reached.
var ErrNoBackend = errors.New("no queue backend configured")

// Opener picks a backend: the running daemon when it answers, otherwise the
// database opened in-process.
type Opener struct {
	Dial      func() (*ipc.Client, error)
	OpenStore func() (*queue.Store, error)
}

// Session is an open Access plus whatever must be released afterwards.
type Session struct {
	Access
	// Direct is true when the session bypasses the daemon.
	Direct  bool
	release func() error
}

// Close releases the IPC connection or store behind the session.
func (s *Session) Close() error {
	if s == nil || s.release == nil {
		return nil
	}
	release := s.release
	s.release = nil
	return release()
}

// Open returns a session on the first backend that can be reached.
func (o Opener) Open() (*Session, error) {
	if o.Dial != nil {
		if client, err := o.Dial(); err == nil {
			return &Session{Access: NewIPCAccess(client), release: client.Close}, nil
		}
	}
	if o.OpenStore == nil {
		return nil, fmt.Errorf("open queue store: %w", ErrNoBackend)
	}
	store, err := o.OpenStore()
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}
	return &Session{Access: NewStoreAccess(store), Direct: true, release: store.Close}, nil
}

// Run opens a session, hands it to fn and closes it again.
func (o Opener) Run(fn func(Access) error) (err error) {
	session, err := o.Open()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := session.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(session)
}
