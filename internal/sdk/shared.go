package sdk

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/beacon/internal/config"
)

// ErrSharedNotInitialized is returned by Shared before InitShared.
var ErrSharedNotInitialized = errors.New("shared sdk not initialized")

// The shared handle exists for the outermost integration boundary only.
// Library code takes an *SDK explicitly.
var shared struct {
	mu   sync.Mutex
	cfg  *config.Config
	opts []Option
	sdk  *SDK
}

// InitShared records how the shared SDK is built. The SDK is opened on the
// first call to Shared.
func InitShared(cfg config.Config, opts ...Option) {
	shared.mu.Lock()
	defer shared.mu.Unlock()
	shared.cfg = &cfg
	shared.opts = opts
}

// Shared returns the process-wide SDK, opening it on first use. A failed
// open is retried on the next call.
func Shared() (*SDK, error) {
	shared.mu.Lock()
	defer shared.mu.Unlock()

	if shared.sdk != nil {
		return shared.sdk, nil
	}
	if shared.cfg == nil {
		return nil, ErrSharedNotInitialized
	}
	s, err := Open(*shared.cfg, shared.opts...)
	if err != nil {
		return nil, err
	}
	shared.sdk = s
	return s, nil
}

// CloseShared closes the shared SDK if it was opened and forgets it.
func CloseShared(ctx context.Context) error {
	shared.mu.Lock()
	s := shared.sdk
	shared.sdk = nil
	shared.mu.Unlock()

	if s == nil {
		return nil
	}
	return s.Close(ctx)
}
