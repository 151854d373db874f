package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	c, err := NewClient(endpoint, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClaimKey(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	existing, claimed, err := c.ClaimKey(ctx, "idempotency:order:k1", "pending", time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Empty(t, existing)

	existing, claimed, err = c.ClaimKey(ctx, "idempotency:order:k1", "pending", time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, "pending", existing)

	require.NoError(t, c.SetKey(ctx, "idempotency:order:k1", "order-1", time.Minute))
	existing, claimed, err = c.ClaimKey(ctx, "idempotency:order:k1", "pending", time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, "order-1", existing)

	require.NoError(t, c.Delete(ctx, "idempotency:order:k1"))
	_, claimed, err = c.ClaimKey(ctx, "idempotency:order:k1", "pending", time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestJSONRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	var out map[string]int
	hit, err := c.GetJSON(ctx, "orders:stats", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.SetJSON(ctx, "orders:stats", map[string]int{"totalOrders": 3}, time.Minute))
	hit, err = c.GetJSON(ctx, "orders:stats", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 3, out["totalOrders"])
}

func TestResetCodes(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SetResetCode(ctx, "ana@example.com", "abc123", time.Minute))

	ok, err := c.ConsumeResetCode(ctx, "ana@example.com", "zzz999")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.ConsumeResetCode(ctx, "ana@example.com", "abc123")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.ConsumeResetCode(ctx, "ana@example.com", "abc123")
	require.NoError(t, err)
	assert.False(t, ok, "codes are single use")
}

func TestResetCodeBurnsAfterTooManyGuesses(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SetResetCode(ctx, "ana@example.com", "abc123", time.Minute))
	for i := 0; i < MaxResetAttempts; i++ {
		ok, err := c.ConsumeResetCode(ctx, "ana@example.com", "wrong")
		require.NoError(t, err)
		assert.False(t, ok)
	}

	ok, err := c.ConsumeResetCode(ctx, "ana@example.com", "abc123")
	require.NoError(t, err)
	assert.False(t, ok)
}
