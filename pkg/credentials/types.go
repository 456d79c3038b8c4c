package credentials

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by a sink or store after Close.
var ErrClosed = errors.New("credentials: closed")

// Record is an upstream guest account bound to a chat group.
type Record struct {
	UserName    string
	GroupID     string
	Token       string
	DeviceID    string
	Agent       string
	AtAccountNo string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Sink receives account records as upstream identities are established.
type Sink interface {
	Save(ctx context.Context, rec Record) error
}

// Nop discards every record.
type Nop struct{}

// Save implements Sink.
func (Nop) Save(context.Context, Record) error { return nil }
