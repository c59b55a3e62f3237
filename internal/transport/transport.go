package transport

import "context"

// Transport is a byte-stream socket to one peer. Framing is owned by the
// link layer; implementations only move bytes.
type Transport interface {
	Name() string
	Connect(ctx context.Context) error
	Close() error
	Read(p []byte) (int, error)
	Write(ctx context.Context, p []byte) error
}
