package model

import "context"

// Transactor runs fn so that every store call made with the passed context
// commits or rolls back together.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
