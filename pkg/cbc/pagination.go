package cbc

import (
	"context"
	"iter"

	"github.com/fivetwenty-io/cbc-client/internal/constants"
)

// Page is one page of results.
type Page[T any] struct {
	Items []T
	// Start is the offset of the first item.
	Start int
	// NumFound is the total match count the server reported, 0 if unknown.
	NumFound int
	// NumAvailable caps how many of NumFound rows can be retrieved, 0 if uncapped.
	NumAvailable int
}

// PageFetcher fetches one page of rows beginning at start.
type PageFetcher[T any] interface {
	FetchPage(ctx context.Context, start, rows int) (*Page[T], error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc[T any] func(ctx context.Context, start, rows int) (*Page[T], error)

// FetchPage implements PageFetcher.
func (f PageFetcherFunc[T]) FetchPage(ctx context.Context, start, rows int) (*Page[T], error) {
	return f(ctx, start, rows)
}

// PaginationOptions configures how many pages are fetched.
type PaginationOptions struct {
	// PageSize is the number of rows requested per page.
	PageSize int
	// MaxPages stops after this many pages (0 = no limit).
	MaxPages int
	// MaxItems stops after this many rows (0 = no limit).
	MaxItems int
}

// DefaultPaginationOptions returns default pagination options.
func DefaultPaginationOptions() *PaginationOptions {
	return &PaginationOptions{
		PageSize: constants.DefaultPageSize,
	}
}

// PaginationIterator walks a paged collection one page at a time, without read-ahead.
type PaginationIterator[T any] struct {
	ctx     context.Context
	fetcher PageFetcher[T]
	opts    PaginationOptions

	items    []T
	index    int
	start    int
	pages    int
	returned int
	numFound int
	done     bool
	err      error
}

// NewPaginationIterator creates a new pagination iterator.
func NewPaginationIterator[T any](ctx context.Context, fetcher PageFetcher[T], opts *PaginationOptions) *PaginationIterator[T] {
	if opts == nil {
		opts = DefaultPaginationOptions()
	}

	options := *opts
	if options.PageSize <= 0 {
		options.PageSize = constants.DefaultPageSize
	}

	return &PaginationIterator[T]{
		ctx:      ctx,
		fetcher:  fetcher,
		opts:     options,
		numFound: -1,
	}
}

// HasNext reports whether Next will return an item or an error.
// It fetches the next page when the current one is exhausted.
func (p *PaginationIterator[T]) HasNext() bool {
	if p.err != nil {
		return true
	}

	if p.limitReached() {
		return false
	}

	if p.index < len(p.items) {
		return true
	}

	if p.done {
		return false
	}

	p.fetchNext()

	if p.err != nil {
		return true
	}

	return p.index < len(p.items)
}

// Next returns the next item.
func (p *PaginationIterator[T]) Next() (T, error) {
	var zero T

	if !p.HasNext() {
		return zero, ErrNoMoreItems
	}

	if p.err != nil {
		err := p.err
		p.err = nil
		p.done = true
		p.items = nil

		return zero, err
	}

	item := p.items[p.index]
	p.index++
	p.returned++

	return item, nil
}

// NumFound returns the server-reported total after the first page, or -1.
func (p *PaginationIterator[T]) NumFound() int {
	return p.numFound
}

// Pages returns how many pages were fetched so far.
func (p *PaginationIterator[T]) Pages() int {
	return p.pages
}

// All collects every remaining item.
func (p *PaginationIterator[T]) All() ([]T, error) {
	var out []T

	for p.HasNext() {
		item, err := p.Next()
		if err != nil {
			return out, err
		}

		out = append(out, item)
	}

	return out, nil
}

// ForEach calls fn for every remaining item, stopping at the first error.
func (p *PaginationIterator[T]) ForEach(fn func(T) error) error {
	for p.HasNext() {
		item, err := p.Next()
		if err != nil {
			return err
		}

		err = fn(item)
		if err != nil {
			return err
		}
	}

	return nil
}

// Seq returns the remaining items as a range-over-func sequence.
func (p *PaginationIterator[T]) Seq() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for p.HasNext() {
			item, err := p.Next()
			if !yield(item, err) || err != nil {
				return
			}
		}
	}
}

func (p *PaginationIterator[T]) limitReached() bool {
	return p.opts.MaxItems > 0 && p.returned >= p.opts.MaxItems
}

func (p *PaginationIterator[T]) fetchNext() {
	if p.opts.MaxPages > 0 && p.pages >= p.opts.MaxPages {
		p.done = true

		return
	}

	err := p.ctx.Err()
	if err != nil {
		p.err = err

		return
	}

	rows := p.opts.PageSize
	if p.opts.MaxItems > 0 {
		remaining := p.opts.MaxItems - p.returned
		if remaining < rows {
			rows = remaining
		}
	}

	page, err := p.fetcher.FetchPage(p.ctx, p.start, rows)
	if err != nil {
		p.err = err

		return
	}

	p.pages++
	p.items = page.Items
	p.index = 0
	p.start += len(page.Items)

	if page.NumFound > 0 || p.numFound < 0 {
		p.numFound = page.NumFound
	}

	switch {
	case len(page.Items) == 0:
		p.done = true
	case page.NumFound > 0:
		limit := page.NumFound
		if page.NumAvailable > 0 && page.NumAvailable < limit {
			limit = page.NumAvailable
		}

		p.done = p.start >= limit
	default:
		p.done = len(page.Items) < rows
	}
}

// FetchAllPages fetches every page and returns all items.
func FetchAllPages[T any](ctx context.Context, fetcher PageFetcher[T], opts *PaginationOptions) ([]T, error) {
	return NewPaginationIterator(ctx, fetcher, opts).All()
}

// PageResult is one page delivered by StreamPages.
type PageResult[T any] struct {
	Items []T
	Err   error
}

// StreamPages fetches pages on a goroutine and delivers them over a channel.
// The channel is closed after the last page or the first error.
func StreamPages[T any](ctx context.Context, fetcher PageFetcher[T], opts *PaginationOptions) <-chan PageResult[T] {
	out := make(chan PageResult[T], constants.SmallBufferSize)

	go func() {
		defer close(out)

		iterator := NewPaginationIterator(ctx, fetcher, opts)

		for iterator.HasNext() {
			if iterator.err != nil {
				select {
				case out <- PageResult[T]{Err: iterator.err}:
				case <-ctx.Done():
				}

				return
			}

			items := iterator.items[iterator.index:]
			if iterator.opts.MaxItems > 0 {
				remaining := iterator.opts.MaxItems - iterator.returned
				if remaining < len(items) {
					items = items[:remaining]
				}
			}

			iterator.index += len(items)
			iterator.returned += len(items)

			select {
			case out <- PageResult[T]{Items: items}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
