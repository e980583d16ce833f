package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction.
// Repos fall back to their own DB handle when Tx is nil.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

func New(ctx context.Context) *Context {
	return &Context{Ctx: ctx}
}

func WithTx(ctx context.Context, tx *gorm.DB) *Context {
	return &Context{Ctx: ctx, Tx: tx}
}
