package qna

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/zhouzirui/chat-relay/backend/internal/model/qna"
)

// Default top-K sizes used when the cache is warmed.
const (
	DefaultFAQTopK   = 3
	DefaultTermsTopK = 6

	defaultBumpTimeout = 5 * time.Second
)

// Source supplies cache contents and records hits.
type Source interface {
	TopFAQs(ctx context.Context, k int) ([]qna.FAQ, error)
	TopTerms(ctx context.Context, k int) ([]qna.Term, error)
	IncrementFAQViews(ctx context.Context, question string) error
	IncrementTermViews(ctx context.Context, term string) error
}

// Options tunes a Cache. Zero values fall back to the defaults above.
type Options struct {
	FAQTopK     int
	TermsTopK   int
	BumpTimeout time.Duration
}

// Cache answers exact-match FAQ questions and glossary terms from memory.
// Entries are merged on refresh and never evicted; the in-memory copy is the
// source of truth for lookups for the life of the process.
type Cache struct {
	source      Source
	faqTopK     int
	termsTopK   int
	bumpTimeout time.Duration

	mu    sync.RWMutex
	faqs  map[string]qna.FAQ
	terms map[string]qna.Term

	pending sync.WaitGroup
}

// NewCache returns an empty cache backed by source. A nil source yields a
// cache that always misses.
func NewCache(source Source, opts Options) *Cache {
	c := &Cache{
		source:      source,
		faqTopK:     opts.FAQTopK,
		termsTopK:   opts.TermsTopK,
		bumpTimeout: opts.BumpTimeout,
		faqs:        make(map[string]qna.FAQ),
		terms:       make(map[string]qna.Term),
	}
	if c.faqTopK <= 0 {
		c.faqTopK = DefaultFAQTopK
	}
	if c.termsTopK <= 0 {
		c.termsTopK = DefaultTermsTopK
	}
	if c.bumpTimeout <= 0 {
		c.bumpTimeout = defaultBumpTimeout
	}
	return c
}

// Warm loads the configured top-K FAQs and terms.
func (c *Cache) Warm(ctx context.Context) error {
	if _, err := c.RefreshFAQs(ctx, c.faqTopK); err != nil {
		return err
	}
	_, err := c.RefreshTerms(ctx, c.termsTopK)
	return err
}

// RefreshFAQs loads the k most viewed FAQs into the cache and returns them.
func (c *Cache) RefreshFAQs(ctx context.Context, k int) ([]qna.FAQ, error) {
	if c.source == nil {
		return nil, nil
	}
	items, err := c.source.TopFAQs(ctx, k)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	for _, item := range items {
		c.faqs[item.Question] = item
	}
	c.mu.Unlock()
	return items, nil
}

// RefreshTerms loads the k most viewed terms into the cache and returns them.
func (c *Cache) RefreshTerms(ctx context.Context, k int) ([]qna.Term, error) {
	if c.source == nil {
		return nil, nil
	}
	items, err := c.source.TopTerms(ctx, k)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	for _, item := range items {
		c.terms[item.Term] = item
	}
	c.mu.Unlock()
	return items, nil
}

// Lookup returns the canned answer for text, checking FAQs before terms.
// A hit schedules a view-counter increment that never blocks or fails the
// lookup.
func (c *Cache) Lookup(ctx context.Context, text string) (string, bool) {
	c.mu.Lock()
	if faq, ok := c.faqs[text]; ok {
		faq.Views++
		c.faqs[text] = faq
		c.mu.Unlock()
		c.bump(ctx, "faq", text, c.incrementFAQ)
		return faq.Answer, true
	}
	if term, ok := c.terms[text]; ok {
		term.Views++
		c.terms[text] = term
		c.mu.Unlock()
		c.bump(ctx, "term", text, c.incrementTerm)
		return term.Definition, true
	}
	c.mu.Unlock()
	return "", false
}

func (c *Cache) incrementFAQ(ctx context.Context, key string) error {
	return c.source.IncrementFAQViews(ctx, key)
}

func (c *Cache) incrementTerm(ctx context.Context, key string) error {
	return c.source.IncrementTermViews(ctx, key)
}

func (c *Cache) bump(ctx context.Context, kind, key string, increment func(context.Context, string) error) {
	if c.source == nil {
		return
	}
	// detached so a closing connection does not drop the increment
	bumpCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.bumpTimeout)
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		defer cancel()
		if err := increment(bumpCtx, key); err != nil {
			log.Printf("[qna] increment %s views failed key=%q: %v", kind, key, err)
		}
	}()
}

// Wait blocks until all in-flight view increments have finished.
func (c *Cache) Wait() {
	c.pending.Wait()
}

// Len reports how many FAQ and term entries are cached.
func (c *Cache) Len() (faqs, terms int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.faqs), len(c.terms)
}
