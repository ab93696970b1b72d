package session

import (
	"context"
	"strconv"
)

// Token identifies one session of one guard. The zero Token is never current.
type Token struct {
	guard   string
	subject string
	gen     uint64
}

func (t Token) Subject() string    { return t.subject }
func (t Token) Generation() uint64 { return t.gen }
func (t Token) IsZero() bool       { return t.gen == 0 }

func (t Token) String() string {
	if t.IsZero() {
		return "session(none)"
	}
	return t.subject + "#" + strconv.FormatUint(t.gen, 10)
}

type tokenKey struct{}

// WithToken tags ctx so that Value.Update calls made under it are fenced by t.
func WithToken(ctx context.Context, t Token) context.Context {
	return context.WithValue(ctx, tokenKey{}, t)
}

func TokenFrom(ctx context.Context) (Token, bool) {
	t, ok := ctx.Value(tokenKey{}).(Token)
	return t, ok
}
