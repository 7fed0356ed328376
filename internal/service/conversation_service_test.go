package service_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keikkaduuni/internal/domain"
	"keikkaduuni/internal/service"
	"keikkaduuni/internal/wire"
)

func TestGetOrCreateConcurrent(t *testing.T) {
	f := newFixture(t)
	ref := domain.ListingRef{ServiceID: &f.aliceService.ID}

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = make(map[int64]int)
		created int
		errs    []error
	)
	for i := 0; i < n; i++ {
		caller, other := f.alice.ID, f.bob.ID
		if i%2 == 1 {
			caller, other = other, caller
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			conv, ok, err := f.conversations.GetOrCreate(f.ctx, caller, service.GetOrCreateInput{
				OtherUserID: other,
				Listing:     ref,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			ids[conv.ID]++
			if ok {
				created++
			}
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Len(t, ids, 1)
	assert.Equal(t, 1, created)

	for id := range ids {
		assert.ElementsMatch(t, []int64{f.alice.ID, f.bob.ID}, f.notify.joined(wire.ConversationRoom(id)))
	}
	assert.Len(t, f.visibleIDs(t, f.alice.ID), 1)
	assert.Len(t, f.visibleIDs(t, f.bob.ID), 1)
}

func TestGetOrCreateScopesByListing(t *testing.T) {
	f := newFixture(t)

	first := f.conversation(t)
	other, created, err := f.conversations.GetOrCreate(f.ctx, f.bob.ID, service.GetOrCreateInput{
		OtherUserID: f.alice.ID,
		Listing:     domain.ListingRef{TarveID: &f.aliceNeed.ID},
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first, other.ID)
	require.NotNil(t, other.Listing)
	assert.Equal(t, "tarve", other.Listing.Kind)
	assert.Equal(t, "Muuttoapu", other.Listing.Title)
	assert.Len(t, other.Participants, 2)
}

func TestGetOrCreateValidation(t *testing.T) {
	f := newFixture(t)
	svcID, needID, missing := f.aliceService.ID, f.aliceNeed.ID, int64(9999)

	cases := []struct {
		name   string
		caller int64
		in     service.GetOrCreateInput
		want   error
	}{
		{"BothListings", f.bob.ID, service.GetOrCreateInput{OtherUserID: f.alice.ID, Listing: domain.ListingRef{ServiceID: &svcID, TarveID: &needID}}, domain.ErrInvalidInput},
		{"NoListing", f.bob.ID, service.GetOrCreateInput{OtherUserID: f.alice.ID}, domain.ErrInvalidInput},
		{"Self", f.bob.ID, service.GetOrCreateInput{OtherUserID: f.bob.ID, Listing: domain.ListingRef{ServiceID: &svcID}}, domain.ErrInvalidInput},
		{"UnknownUser", f.bob.ID, service.GetOrCreateInput{OtherUserID: missing, Listing: domain.ListingRef{ServiceID: &svcID}}, domain.ErrNotFound},
		{"UnknownListing", f.bob.ID, service.GetOrCreateInput{OtherUserID: f.alice.ID, Listing: domain.ListingRef{TarveID: &missing}}, domain.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := f.conversations.GetOrCreate(f.ctx, tc.caller, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestGetOrCreateLeavesDeletedFlags(t *testing.T) {
	f := newFixture(t)
	id := f.conversation(t)
	require.NoError(t, f.conversations.SoftDelete(f.ctx, id, f.alice.ID))

	again, created, err := f.conversations.GetOrCreate(f.ctx, f.bob.ID, service.GetOrCreateInput{
		OtherUserID: f.alice.ID,
		Listing:     domain.ListingRef{ServiceID: &f.aliceService.ID},
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, again.ID)
	assert.Empty(t, f.visibleIDs(t, f.alice.ID))
}

func TestUnreadDerivation(t *testing.T) {
	f := newFixture(t)
	id := f.conversation(t)

	get := func(userID int64) *wire.Conversation {
		c, err := f.conversations.Get(f.ctx, id, userID)
		require.NoError(t, err)
		return c
	}

	assert.False(t, get(f.alice.ID).IsUnread, "empty conversation is never unread")

	f.send(t, id, f.bob.ID, "Hei, onko tämä vapaa?")
	assert.True(t, get(f.alice.ID).IsUnread)
	assert.False(t, get(f.bob.ID).IsUnread, "own message is never unread")

	require.NoError(t, f.conversations.MarkRead(f.ctx, id, f.alice.ID))
	assert.False(t, get(f.alice.ID).IsUnread)

	f.send(t, id, f.bob.ID, "Vastaatko?")
	c := get(f.alice.ID)
	assert.True(t, c.IsUnread)
	require.NotNil(t, c.LastMessage)
	assert.Equal(t, "Vastaatko?", c.LastMessage.Content)
	require.Len(t, c.Messages, 2)
	assert.Equal(t, "Hei, onko tämä vapaa?", c.Messages[0].Content)

	f.send(t, id, f.alice.ID, "On vapaa")
	assert.False(t, get(f.alice.ID).IsUnread, "replying supersedes the unread message")
}

func TestMarkReadIgnoresHiddenRows(t *testing.T) {
	f := newFixture(t)
	id := f.conversation(t)
	require.NoError(t, f.conversations.SoftDelete(f.ctx, id, f.alice.ID))

	require.NoError(t, f.conversations.MarkRead(f.ctx, id, f.alice.ID))
	require.NoError(t, f.conversations.MarkRead(f.ctx, id, f.carol.ID))

	p, err := f.store.Participants.Get(f.ctx, id, f.alice.ID)
	require.NoError(t, err)
	assert.Nil(t, p.LastSeenAt)
}

func TestResurrection(t *testing.T) {
	f := newFixture(t)
	id := f.conversation(t)

	require.NoError(t, f.conversations.SoftDelete(f.ctx, id, f.alice.ID))
	require.NoError(t, f.conversations.SoftDelete(f.ctx, id, f.bob.ID))
	assert.Empty(t, f.visibleIDs(t, f.alice.ID))

	f.send(t, id, f.bob.ID, "Oletko vielä kiinnostunut?")

	assert.Equal(t, []int64{id}, f.visibleIDs(t, f.alice.ID))
	assert.Empty(t, f.visibleIDs(t, f.bob.ID), "sender does not resurrect their own row")
}

func TestSoftDelete(t *testing.T) {
	f := newFixture(t)
	id := f.conversation(t)

	require.NoError(t, f.conversations.SoftDelete(f.ctx, id, f.alice.ID))
	require.NoError(t, f.conversations.SoftDelete(f.ctx, id, f.alice.ID), "idempotent")
	assert.Equal(t, []int64{id}, f.visibleIDs(t, f.bob.ID))

	assert.ErrorIs(t, f.conversations.SoftDelete(f.ctx, id, f.carol.ID), domain.ErrForbidden)
	assert.ErrorIs(t, f.conversations.SoftDelete(f.ctx, 9999, f.alice.ID), domain.ErrNotFound)
}

func TestAuthorizationBoundary(t *testing.T) {
	f := newFixture(t)
	id := f.conversation(t)
	f.send(t, id, f.bob.ID, "hei")

	_, err := f.conversations.Get(f.ctx, id, f.carol.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.messages.List(f.ctx, id, f.carol.ID, 1, 20)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Empty(t, f.visibleIDs(t, f.carol.ID))

	_, err = f.conversations.Get(f.ctx, 9999, f.alice.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.messages.List(f.ctx, 9999, f.alice.ID, 1, 20)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, f.conversations.SoftDelete(f.ctx, id, f.alice.ID))
	_, err = f.conversations.Get(f.ctx, id, f.alice.ID)
	assert.NoError(t, err)
	page, err := f.messages.List(f.ctx, id, f.alice.ID, 1, 20)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 1)
	assert.NotContains(t, f.visibleIDs(t, f.alice.ID), id)
}

func TestConversationIDsIncludeHidden(t *testing.T) {
	f := newFixture(t)
	id := f.conversation(t)
	require.NoError(t, f.conversations.SoftDelete(f.ctx, id, f.alice.ID))

	ids, err := f.conversations.ConversationIDs(f.ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{id}, ids)

	assert.NoError(t, f.conversations.CanJoin(f.ctx, id, f.alice.ID))
	assert.ErrorIs(t, f.conversations.CanJoin(f.ctx, id, f.carol.ID), domain.ErrForbidden)
}
