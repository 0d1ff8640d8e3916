package qna

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Refresher periodically re-warms a Cache on a cron schedule so newly
// popular questions are picked up without a restart.
type Refresher struct {
	cache   *Cache
	timeout time.Duration
	cron    *cron.Cron
}

// NewRefresher validates the cron schedule and prepares a stopped Refresher.
func NewRefresher(cache *Cache, schedule string, timeout time.Duration) (*Refresher, error) {
	if cache == nil {
		return nil, fmt.Errorf("qna: refresher: cache is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := &Refresher{
		cache:   cache,
		timeout: timeout,
		cron:    cron.New(cron.WithParser(cronParser)),
	}
	if _, err := r.cron.AddFunc(schedule, r.run); err != nil {
		return nil, fmt.Errorf("qna: refresher: invalid schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Start begins running the schedule in the background.
func (r *Refresher) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Refresher) run() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.cache.Warm(ctx); err != nil {
		log.Printf("[qna] scheduled refresh failed: %v", err)
		return
	}
	faqs, terms := r.cache.Len()
	log.Printf("[qna] cache refreshed faqs=%d terms=%d", faqs, terms)
}
