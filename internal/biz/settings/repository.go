package settings

import (
	"context"

	"github.com/samber/mo"
)

type Repo interface {
	Get(ctx context.Context, name string) (mo.Option[string], error)
	Set(ctx context.Context, name, value string) error
	// EnsureDefault creates the row with the given value only if it does
	// not exist yet.
	EnsureDefault(ctx context.Context, name, value string) error
}
