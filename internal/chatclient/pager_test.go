package chatclient

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keikkaduuni/internal/wire"
)

func TestPagerBackfill(t *testing.T) {
	tl := NewTimeline(7, 1)
	first := &wire.MessagePage{Messages: []wire.Message{msg(21, 21, 2), msg(22, 22, 2)}, Page: 1, HasMore: true}
	tl.MergeServer(tl.BeginMerge(), first.Messages)

	var requested []int
	fetch := func(_ context.Context, page int) (*wire.MessagePage, error) {
		requested = append(requested, page)
		switch page {
		case 2:
			return &wire.MessagePage{Messages: []wire.Message{msg(11, 11, 2), msg(12, 12, 2)}, Page: 2, HasMore: true}, nil
		case 3:
			return &wire.MessagePage{Messages: []wire.Message{msg(1, 1, 2)}, Page: 3, HasMore: false}, nil
		}
		return &wire.MessagePage{Page: page}, nil
	}
	measure := func() float64 { return float64(tl.Len()) * 40 }
	p := NewPager(tl, first, fetch, measure, 100)

	delta, fetched, err := p.OnScroll(context.Background(), 500)
	require.NoError(t, err)
	assert.False(t, fetched, "far from the top")
	assert.Zero(t, delta)

	delta, fetched, err = p.OnScroll(context.Background(), 50)
	require.NoError(t, err)
	assert.True(t, fetched)
	assert.Equal(t, 80.0, delta)
	assert.True(t, p.HasMore())

	delta, _, err = p.OnScroll(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 40.0, delta)
	assert.False(t, p.HasMore())

	_, fetched, _ = p.OnScroll(context.Background(), 0)
	assert.False(t, fetched, "history exhausted")
	assert.Equal(t, []int{2, 3}, requested)
	assert.Equal(t, []int64{1, 11, 12, 21, 22}, ids(tl.Entries()))
}

func TestPagerSingleFlight(t *testing.T) {
	tl := NewTimeline(7, 1)
	release := make(chan struct{})
	started := make(chan struct{})
	calls := 0
	fetch := func(_ context.Context, page int) (*wire.MessagePage, error) {
		calls++
		close(started)
		<-release
		return &wire.MessagePage{Messages: []wire.Message{msg(1, 1, 2)}, Page: page, HasMore: true}, nil
	}
	p := NewPager(tl, &wire.MessagePage{Page: 1, HasMore: true}, fetch, func() float64 { return 0 }, 100)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, fetched, err := p.OnScroll(context.Background(), 0)
		assert.NoError(t, err)
		assert.True(t, fetched)
	}()

	<-started
	assert.Equal(t, PagerFetchingOlder, p.State())
	_, fetched, err := p.OnScroll(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, fetched, "a fetch is already in flight")

	close(release)
	wg.Wait()
	assert.Equal(t, PagerIdle, p.State())
	assert.Equal(t, 1, calls)
}

func TestPagerEmptyPageAndError(t *testing.T) {
	tl := NewTimeline(7, 1)
	fail := true
	fetch := func(_ context.Context, page int) (*wire.MessagePage, error) {
		if fail {
			return nil, errors.New("offline")
		}
		return &wire.MessagePage{Page: page, HasMore: true}, nil
	}
	p := NewPager(tl, &wire.MessagePage{Page: 1, HasMore: true}, fetch, func() float64 { return 0 }, 100)

	_, fetched, err := p.OnScroll(context.Background(), 0)
	require.Error(t, err)
	assert.True(t, fetched)
	assert.True(t, p.HasMore(), "a failed fetch can be retried")
	assert.Equal(t, PagerIdle, p.State())

	fail = false
	_, _, err = p.OnScroll(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, p.HasMore(), "an empty page ends history")
}
