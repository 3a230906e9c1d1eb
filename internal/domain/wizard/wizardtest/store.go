// Package wizardtest holds the behaviour every wizard.Store must show.
package wizardtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mahaseias/sendzap/internal/domain/proposal"
	"github.com/Mahaseias/sendzap/internal/domain/wizard"
)

// Clock is a manually advanced wizard.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Factory builds an empty store using clock and ttl.
type Factory func(t *testing.T, clock wizard.Clock, ttl time.Duration) wizard.Store

const ttl = 2 * time.Hour

func RunStoreTests(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("creates fresh session", func(t *testing.T) {
		st := newStore(t, NewClock().Now, ttl)
		s, err := st.GetOrCreate(ctx, "wa:+5511900000001")
		require.NoError(t, err)
		assert.Equal(t, "wa:+5511900000001", s.ID)
		assert.Equal(t, wizard.StateMenu, s.State)
		assert.True(t, s.Draft.Empty())
	})

	t.Run("save round trip", func(t *testing.T) {
		st := newStore(t, NewClock().Now, ttl)
		s, err := st.GetOrCreate(ctx, "wa:+5511900000002")
		require.NoError(t, err)
		s.State = wizard.StateQty
		s.Draft.Client = proposal.Client{Name: "Maria", Email: "maria@example.com"}
		s.Draft.Selection = []string{"lamp_smart", "camera_wifi"}
		s.Draft.Quantities = map[string]int{"lamp_smart": 2}
		s.Draft.Notes = "sala"
		s.Draft.NotesSet = true
		s.LastMessageID = "SM1"
		s.LastReply = "ok"
		require.NoError(t, st.Save(ctx, s))

		got, err := st.GetOrCreate(ctx, "wa:+5511900000002")
		require.NoError(t, err)
		assert.Equal(t, wizard.StateQty, got.State)
		assert.Equal(t, s.Draft, got.Draft)
		assert.Equal(t, "SM1", got.LastMessageID)
		assert.Equal(t, "ok", got.LastReply)
	})

	t.Run("returned sessions are copies", func(t *testing.T) {
		st := newStore(t, NewClock().Now, ttl)
		s, _ := st.GetOrCreate(ctx, "tg:1")
		s.Draft.Selection = []string{"lamp_smart"}
		require.NoError(t, st.Save(ctx, s))

		s.Draft.Selection[0] = "hub_zigbee"
		got, err := st.GetOrCreate(ctx, "tg:1")
		require.NoError(t, err)
		assert.Equal(t, []string{"lamp_smart"}, got.Draft.Selection)
	})

	t.Run("expired session is treated as absent", func(t *testing.T) {
		clock := NewClock()
		st := newStore(t, clock.Now, ttl)
		s, _ := st.GetOrCreate(ctx, "wa:+5511900000003")
		s.State = wizard.StateClientEmail
		s.Draft.Client.Name = "Maria"
		require.NoError(t, st.Save(ctx, s))

		clock.Advance(ttl - time.Minute)
		got, err := st.GetOrCreate(ctx, "wa:+5511900000003")
		require.NoError(t, err)
		assert.Equal(t, wizard.StateClientEmail, got.State)

		clock.Advance(2 * time.Minute)
		got, err = st.GetOrCreate(ctx, "wa:+5511900000003")
		require.NoError(t, err)
		assert.Equal(t, wizard.StateMenu, got.State)
		assert.True(t, got.Draft.Empty())

		got, err = st.GetOrCreate(ctx, "wa:+5511900000003")
		require.NoError(t, err)
		assert.True(t, got.Draft.Empty())
	})

	t.Run("delete", func(t *testing.T) {
		st := newStore(t, NewClock().Now, ttl)
		s, _ := st.GetOrCreate(ctx, "wa:+5511900000004")
		s.Draft.Client.Name = "Maria"
		require.NoError(t, st.Save(ctx, s))
		require.NoError(t, st.Delete(ctx, "wa:+5511900000004"))
		require.NoError(t, st.Delete(ctx, "wa:+5511900000004"))

		got, err := st.GetOrCreate(ctx, "wa:+5511900000004")
		require.NoError(t, err)
		assert.True(t, got.Draft.Empty())
	})

	t.Run("update discards on error", func(t *testing.T) {
		st := newStore(t, NewClock().Now, ttl)
		boom := errors.New("boom")
		_, err := st.Update(ctx, "wa:+5511900000005", func(s *wizard.Session) error {
			s.Draft.Client.Name = "Maria"
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := st.GetOrCreate(ctx, "wa:+5511900000005")
		require.NoError(t, err)
		assert.Empty(t, got.Draft.Client.Name)
	})

	t.Run("update touches activity", func(t *testing.T) {
		clock := NewClock()
		st := newStore(t, clock.Now, ttl)
		_, err := st.Update(ctx, "wa:+5511900000006", func(s *wizard.Session) error {
			s.State = wizard.StateClientName
			return nil
		})
		require.NoError(t, err)

		clock.Advance(ttl - time.Minute)
		_, err = st.Update(ctx, "wa:+5511900000006", func(s *wizard.Session) error {
			assert.Equal(t, wizard.StateClientName, s.State)
			s.Draft.Client.Name = "Maria"
			return nil
		})
		require.NoError(t, err)

		clock.Advance(ttl - time.Minute)
		got, err := st.GetOrCreate(ctx, "wa:+5511900000006")
		require.NoError(t, err)
		assert.Equal(t, "Maria", got.Draft.Client.Name)
	})

	t.Run("concurrent updates on one key are not lost", func(t *testing.T) {
		st := newStore(t, NewClock().Now, ttl)
		const n = 20
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := st.Update(ctx, "wa:+5511900000007", func(s *wizard.Session) error {
					s.Draft.Selection = append(s.Draft.Selection, fmt.Sprintf("sku_%d", i))
					return nil
				})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		got, err := st.GetOrCreate(ctx, "wa:+5511900000007")
		require.NoError(t, err)
		assert.Len(t, got.Draft.Selection, n)
	})

	t.Run("sweep removes expired sessions", func(t *testing.T) {
		clock := NewClock()
		st := newStore(t, clock.Now, ttl)
		sw, ok := st.(wizard.Sweeper)
		if !ok {
			t.Skip("store does not sweep")
		}
		for _, id := range []string{"a", "b"} {
			s, _ := st.GetOrCreate(ctx, id)
			require.NoError(t, st.Save(ctx, s))
		}
		clock.Advance(ttl + time.Minute)
		s, _ := st.GetOrCreate(ctx, "c")
		require.NoError(t, st.Save(ctx, s))

		n, err := sw.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}
