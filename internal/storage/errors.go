package storage

import "errors"

// ErrNotFound indicates the requested key does not exist.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("store closed")
