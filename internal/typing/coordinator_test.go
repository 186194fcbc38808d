package typing

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestCoordinator(ttl time.Duration) (*Coordinator, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	return newCoordinator(zerolog.Nop(), ttl, clock.Now), clock
}

func TestStartTypingSetsActiveTyper(t *testing.T) {
	c, _ := newTestCoordinator(3 * time.Second)

	c.StartTyping("conv1", "u2", "Bea")

	entry := c.Typer("conv1")
	require.NotNil(t, entry)
	assert.Equal(t, "u2", entry.UserID)
	assert.Equal(t, "Bea", entry.UserName)
	assert.Nil(t, c.Typer("conv2"))
}

func TestLastTyperWins(t *testing.T) {
	c, _ := newTestCoordinator(3 * time.Second)

	c.StartTyping("conv1", "u2", "Bea")
	c.StartTyping("conv1", "u3", "Cem")

	entry := c.Typer("conv1")
	require.NotNil(t, entry)
	assert.Equal(t, "u3", entry.UserID)
}

func TestStopTypingOnlyClearsOwnEntry(t *testing.T) {
	c, _ := newTestCoordinator(3 * time.Second)
	c.StartTyping("conv1", "u2", "Bea")
	c.StartTyping("conv1", "u3", "Cem")

	// u2 was already replaced; its stop must not clear u3's entry.
	c.StopTyping("conv1", "u2")
	require.NotNil(t, c.Typer("conv1"))

	c.StopTyping("conv1", "u3")
	assert.Nil(t, c.Typer("conv1"))
}

func TestEntryExpiresAfterTTL(t *testing.T) {
	c, clock := newTestCoordinator(3 * time.Second)
	c.StartTyping("conv1", "u2", "Bea")

	clock.Advance(2 * time.Second)
	require.NotNil(t, c.Typer("conv1"))

	// Past the TTL the entry is invisible even before the sweep runs.
	clock.Advance(time.Second)
	assert.Nil(t, c.Typer("conv1"))

	assert.Equal(t, 1, c.Sweep())
	assert.Nil(t, c.Typer("conv1"))
}

func TestRefreshExtendsDeadline(t *testing.T) {
	c, clock := newTestCoordinator(3 * time.Second)
	c.StartTyping("conv1", "u2", "Bea")

	clock.Advance(2 * time.Second)
	c.StartTyping("conv1", "u2", "Bea")

	clock.Advance(2 * time.Second)
	require.NotNil(t, c.Typer("conv1"))
	assert.Equal(t, 0, c.Sweep())
}

func TestSweepEvictsOnlyExpiredEntries(t *testing.T) {
	c, clock := newTestCoordinator(3 * time.Second)
	c.StartTyping("conv1", "u2", "Bea")
	clock.Advance(2 * time.Second)
	c.StartTyping("conv2", "u3", "Cem")

	clock.Advance(time.Second + time.Millisecond)

	assert.Equal(t, 1, c.Sweep())
	assert.Nil(t, c.Typer("conv1"))
	assert.NotNil(t, c.Typer("conv2"))
}
