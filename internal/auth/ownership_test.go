package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthorizeMutation(t *testing.T) {
	assert.Equal(t, Allowed, AuthorizeMutation(1, 1))
	assert.Equal(t, Forbidden, AuthorizeMutation(1, 2))
	assert.Equal(t, "forbidden", Forbidden.String())
}

func TestIdentityContext(t *testing.T) {
	assert.Nil(t, IdentityFromContext(context.Background()))

	id := &Identity{UserID: 5, TokenID: "t", Kind: KindAccess}
	ctx := WithIdentity(context.Background(), id)
	assert.Same(t, id, IdentityFromContext(ctx))
}
