package cbc_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/cbc-client/pkg/cbc"
)

var errPageFailed = errors.New("page failed")

type testResource struct {
	ID string
}

// offsetFetcher serves a fixed collection by offset and records each request.
type offsetFetcher struct {
	mutex        sync.Mutex
	items        []testResource
	numFound     int
	numAvailable int
	failAt       int
	requests     [][2]int
}

func newOffsetFetcher(count int) *offsetFetcher {
	items := make([]testResource, count)
	for i := range items {
		items[i] = testResource{ID: string(rune('a' + i))}
	}

	return &offsetFetcher{items: items, numFound: count, failAt: -1}
}

func (f *offsetFetcher) FetchPage(_ context.Context, start, rows int) (*cbc.Page[testResource], error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.requests = append(f.requests, [2]int{start, rows})

	if f.failAt >= 0 && start >= f.failAt {
		return nil, errPageFailed
	}

	end := min(start+rows, len(f.items))
	if f.numAvailable > 0 {
		end = min(end, f.numAvailable)
	}

	if start > end {
		start = end
	}

	return &cbc.Page[testResource]{
		Items:        f.items[start:end],
		Start:        start,
		NumFound:     f.numFound,
		NumAvailable: f.numAvailable,
	}, nil
}

func (f *offsetFetcher) starts() []int {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	out := make([]int, 0, len(f.requests))
	for _, r := range f.requests {
		out = append(out, r[0])
	}

	return out
}

func ids(items []testResource) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}

	return out
}

func TestPaginationIterator_HasNext(t *testing.T) {
	t.Parallel()

	fetcher := newOffsetFetcher(3)
	iterator := cbc.NewPaginationIterator[testResource](context.Background(), fetcher, &cbc.PaginationOptions{PageSize: 2})

	// Nothing is fetched until asked.
	assert.Empty(t, fetcher.starts())

	for _, want := range []string{"a", "b", "c"} {
		require.True(t, iterator.HasNext())

		item, err := iterator.Next()
		require.NoError(t, err)
		assert.Equal(t, want, item.ID)
	}

	assert.False(t, iterator.HasNext())
	assert.Equal(t, []int{0, 2}, fetcher.starts())
	assert.Equal(t, 3, iterator.NumFound())
	assert.Equal(t, 2, iterator.Pages())

	_, err := iterator.Next()
	require.ErrorIs(t, err, cbc.ErrNoMoreItems)
}

func TestPaginationIterator_StopRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		count        int
		numFound     int
		numAvailable int
		pageSize     int
		wantItems    int
		wantStarts   []int
	}{
		{name: "exact multiple", count: 4, numFound: 4, pageSize: 2, wantItems: 4, wantStarts: []int{0, 2}},
		{name: "short last page", count: 5, numFound: 5, pageSize: 2, wantItems: 5, wantStarts: []int{0, 2, 4}},
		{name: "num available caps", count: 10, numFound: 10, numAvailable: 3, pageSize: 2, wantItems: 3, wantStarts: []int{0, 2}},
		{name: "no total stops on short page", count: 3, pageSize: 2, wantItems: 3, wantStarts: []int{0, 2}},
		{name: "no total full pages need an empty page", count: 4, pageSize: 2, wantItems: 4, wantStarts: []int{0, 2, 4}},
		{name: "empty", count: 0, pageSize: 2, wantItems: 0, wantStarts: []int{0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fetcher := newOffsetFetcher(tt.count)
			fetcher.numFound = tt.numFound
			fetcher.numAvailable = tt.numAvailable

			items, err := cbc.FetchAllPages[testResource](context.Background(), fetcher, &cbc.PaginationOptions{PageSize: tt.pageSize})
			require.NoError(t, err)
			assert.Len(t, items, tt.wantItems)
			assert.Equal(t, tt.wantStarts, fetcher.starts())
		})
	}
}

func TestPaginationIterator_MaxItems(t *testing.T) {
	t.Parallel()

	fetcher := newOffsetFetcher(10)

	items, err := cbc.FetchAllPages[testResource](context.Background(), fetcher, &cbc.PaginationOptions{PageSize: 4, MaxItems: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ids(items))

	// The second request only asks for what is still needed.
	require.Len(t, fetcher.requests, 2)
	assert.Equal(t, [2]int{4, 1}, fetcher.requests[1])
}

func TestPaginationIterator_MaxPages(t *testing.T) {
	t.Parallel()

	fetcher := newOffsetFetcher(10)

	items, err := cbc.FetchAllPages[testResource](context.Background(), fetcher, &cbc.PaginationOptions{PageSize: 3, MaxPages: 2})
	require.NoError(t, err)
	assert.Len(t, items, 6)
	assert.Equal(t, []int{0, 3}, fetcher.starts())
}

func TestPaginationIterator_ErrorAfterItems(t *testing.T) {
	t.Parallel()

	fetcher := newOffsetFetcher(6)
	fetcher.failAt = 2

	items, err := cbc.FetchAllPages[testResource](context.Background(), fetcher, &cbc.PaginationOptions{PageSize: 2})
	require.ErrorIs(t, err, errPageFailed)
	assert.Equal(t, []string{"a", "b"}, ids(items))
}

func TestPaginationIterator_ForEach(t *testing.T) {
	t.Parallel()

	iterator := cbc.NewPaginationIterator[testResource](context.Background(), newOffsetFetcher(3), nil)

	var collected []string

	err := iterator.ForEach(func(resource testResource) error {
		collected = append(collected, resource.ID)

		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, collected)

	stop := errors.New("stop")
	iterator = cbc.NewPaginationIterator[testResource](context.Background(), newOffsetFetcher(3), nil)

	err = iterator.ForEach(func(testResource) error { return stop })
	require.ErrorIs(t, err, stop)
}

func TestPaginationIterator_Seq(t *testing.T) {
	t.Parallel()

	iterator := cbc.NewPaginationIterator[testResource](context.Background(), newOffsetFetcher(5), &cbc.PaginationOptions{PageSize: 2})

	var collected []string

	for item, err := range iterator.Seq() {
		require.NoError(t, err)

		collected = append(collected, item.ID)
		if len(collected) == 3 {
			break
		}
	}

	assert.Equal(t, []string{"a", "b", "c"}, collected)
}

func TestPaginationIterator_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := newOffsetFetcher(3)

	_, err := cbc.FetchAllPages[testResource](ctx, fetcher, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fetcher.starts())
}

func TestPageFetcherFunc(t *testing.T) {
	t.Parallel()

	fetcher := cbc.PageFetcherFunc[int](func(_ context.Context, start, rows int) (*cbc.Page[int], error) {
		if start >= 4 {
			return &cbc.Page[int]{Start: start}, nil
		}

		items := make([]int, rows)
		for i := range items {
			items[i] = start + i
		}

		return &cbc.Page[int]{Items: items, Start: start}, nil
	})

	items, err := cbc.FetchAllPages[int](context.Background(), fetcher, &cbc.PaginationOptions{PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, items)
}

func TestStreamPages(t *testing.T) {
	t.Parallel()

	var pages [][]string

	for result := range cbc.StreamPages[testResource](context.Background(), newOffsetFetcher(5), &cbc.PaginationOptions{PageSize: 2}) {
		require.NoError(t, result.Err)

		pages = append(pages, ids(result.Items))
	}

	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, pages)
}

func TestStreamPages_Error(t *testing.T) {
	t.Parallel()

	fetcher := newOffsetFetcher(6)
	fetcher.failAt = 2

	var (
		pages   int
		lastErr error
	)

	for result := range cbc.StreamPages[testResource](context.Background(), fetcher, &cbc.PaginationOptions{PageSize: 2}) {
		if result.Err != nil {
			lastErr = result.Err

			continue
		}

		pages++
	}

	assert.Equal(t, 1, pages)
	require.ErrorIs(t, lastErr, errPageFailed)
}

func TestDefaultPaginationOptions(t *testing.T) {
	t.Parallel()

	opts := cbc.DefaultPaginationOptions()
	assert.Positive(t, opts.PageSize)
	assert.Zero(t, opts.MaxPages)
	assert.Zero(t, opts.MaxItems)
}
