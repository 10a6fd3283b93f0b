package swcache

import (
	"errors"
	"fmt"
)

var (
	// ErrNoResponse means neither the network nor any namespace could answer.
	// A host should treat it as a failed load.
	ErrNoResponse = errors.New("swcache: no response")
	// ErrClosed is returned by lifecycle calls after Close.
	ErrClosed = errors.New("swcache: worker closed")
	// ErrStoreRejected is returned by Put when the provider refused the write.
	ErrStoreRejected = errors.New("swcache: store rejected write")
)

// InstallError reports the seed path that made Install fail.
type InstallError struct {
	Path   string
	Status int   // set when the seed answered with a non-2xx status
	Err    error // network or storage error
}

func (e *InstallError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("install seed %q: %v", e.Path, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("install seed %q: status %d", e.Path, e.Status)
	default:
		return fmt.Sprintf("install seed %q: unknown error", e.Path)
	}
}

func (e *InstallError) Unwrap() error { return e.Err }

// FetchError is returned by Fetch when the network failed and the cache missed.
// It matches ErrNoResponse with errors.Is.
type FetchError struct {
	RequestKey string
	NetErr     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: network failed and cache missed: %v", e.RequestKey, e.NetErr)
}

func (e *FetchError) Unwrap() []error {
	errs := []error{ErrNoResponse}
	if e.NetErr != nil {
		errs = append(errs, e.NetErr)
	}
	return errs
}

// StateError is returned when a lifecycle hook is called in the wrong state.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("swcache: %s not allowed in state %s", e.Op, e.State)
}
