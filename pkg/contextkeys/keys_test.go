package contextkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetIdentity(ctx))

	ctx = WithIdentity(ctx, "auth0|abc")
	assert.Equal(t, "auth0|abc", GetIdentity(ctx))
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))

	ctx = WithRequestID(ctx, "req-1")
	assert.Equal(t, "req-1", GetRequestID(ctx))
}

func TestWrongTypeIsIgnored(t *testing.T) {
	ctx := context.WithValue(context.Background(), IdentityKey, 42)
	assert.Empty(t, GetIdentity(ctx))
}
