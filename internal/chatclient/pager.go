package chatclient

import (
	"context"
	"sync"

	"keikkaduuni/internal/wire"
)

// PagerState is the backfill state.
type PagerState int

const (
	PagerIdle PagerState = iota
	PagerFetchingOlder
)

// PageFetcher loads one page of history, page 1 being the newest.
type PageFetcher func(ctx context.Context, page int) (*wire.MessagePage, error)

// Pager loads older history into a Timeline when the view scrolls near the
// top. Only one fetch runs at a time.
type Pager struct {
	mu        sync.Mutex
	state     PagerState
	nextPage  int
	hasMore   bool
	threshold float64

	timeline *Timeline
	fetch    PageFetcher
	measure  func() float64
}

// NewPager starts after first, the page the timeline was opened with.
// measure returns the current content height of the rendered timeline.
func NewPager(tl *Timeline, first *wire.MessagePage, fetch PageFetcher, measure func() float64, threshold float64) *Pager {
	return &Pager{
		nextPage:  first.Page + 1,
		hasMore:   first.HasMore,
		threshold: threshold,
		timeline:  tl,
		fetch:     fetch,
		measure:   measure,
	}
}

func (p *Pager) State() PagerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pager) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

// OnScroll is called with the distance from the top of the loaded window.
// When it is within the threshold it fetches the next older page, prepends
// it and returns the height added above the viewport, which the caller adds
// to its scroll offset to keep the view still. fetched is false when
// nothing was requested.
func (p *Pager) OnScroll(ctx context.Context, offset float64) (delta float64, fetched bool, err error) {
	p.mu.Lock()
	if offset > p.threshold || p.state != PagerIdle || !p.hasMore {
		p.mu.Unlock()
		return 0, false, nil
	}
	p.state = PagerFetchingOlder
	page := p.nextPage
	p.mu.Unlock()

	res, err := p.fetch(ctx, page)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = PagerIdle
	if err != nil {
		return 0, true, err
	}

	if len(res.Messages) == 0 {
		p.hasMore = false
		return 0, true, nil
	}
	before := p.measure()
	p.timeline.Prepend(res.Messages)
	delta = p.measure() - before

	p.nextPage = page + 1
	p.hasMore = res.HasMore
	return delta, true, nil
}
