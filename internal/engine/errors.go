package engine

import "errors"

// ErrClosed is returned by Log and Flush once Close has been called.
var ErrClosed = errors.New("controller closed")
