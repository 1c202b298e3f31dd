package calendar

import (
	"context"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Feed is an ICS URL imported into the schedule on an interval.
type Feed struct {
	URL         string `yaml:"url" json:"url"`
	IntervalMin int    `yaml:"interval_min" json:"interval_min"`
}

// SyncHook receives every feed sync outcome.
type SyncHook func(result *SyncResult, err error)

// Scheduler manages periodic feed sync jobs.
type Scheduler struct {
	cron        *cron.Cron
	syncService *SyncService
	onSync      SyncHook

	// Track jobs per feed URL
	jobs   map[string]cron.EntryID
	jobsMu sync.RWMutex

	// Default sync interval if a feed doesn't specify
	defaultInterval time.Duration
}

// NewScheduler creates a new feed sync scheduler.
func NewScheduler(syncService *SyncService, defaultIntervalMin int, onSync SyncHook) *Scheduler {
	if defaultIntervalMin <= 0 {
		defaultIntervalMin = 60
	}

	return &Scheduler{
		cron:            cron.New(cron.WithSeconds()),
		syncService:     syncService,
		onSync:          onSync,
		jobs:            make(map[string]cron.EntryID),
		defaultInterval: time.Duration(defaultIntervalMin) * time.Minute,
	}
}

// Start schedules the feeds and begins running jobs.
func (s *Scheduler) Start(feeds []Feed) {
	log.Println("Starting feed sync scheduler...")

	for _, f := range feeds {
		s.ScheduleFeed(f)
	}

	s.cron.Start()
	log.Printf("Feed scheduler started with %d feeds", len(feeds))
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	log.Println("Stopping feed sync scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("Feed scheduler stopped")
}

// ScheduleFeed adds or updates a feed's sync schedule.
func (s *Scheduler) ScheduleFeed(f Feed) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	// Remove existing job if any
	if existingID, exists := s.jobs[f.URL]; exists {
		s.cron.Remove(existingID)
		delete(s.jobs, f.URL)
	}

	spec := s.intervalSpec(f.IntervalMin)
	url := f.URL
	entryID, err := s.cron.AddFunc(spec, func() {
		s.syncFeed(url)
	})
	if err != nil {
		log.Printf("Failed to schedule feed %s: %v", f.URL, err)
		return
	}

	s.jobs[f.URL] = entryID
	log.Printf("Scheduled feed %s (%s)", f.URL, spec)
}

// UnscheduleFeed removes a feed from the sync schedule.
func (s *Scheduler) UnscheduleFeed(url string) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	if entryID, exists := s.jobs[url]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, url)
		log.Printf("Unscheduled feed %s", url)
	}
}

// TriggerSync runs an immediate sync of a feed in the background.
func (s *Scheduler) TriggerSync(url string) {
	go s.syncFeed(url)
}

// syncFeed performs the actual sync operation.
func (s *Scheduler) syncFeed(url string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	log.Printf("Syncing feed: %s", url)
	result, err := s.syncService.SyncFeed(ctx, url)
	if err != nil {
		log.Printf("Feed sync failed for %s: %v", url, err)
	} else {
		log.Printf("Feed sync completed for %s: %s", url, result)
	}

	if s.onSync != nil {
		s.onSync(result, err)
	}
}

// intervalSpec converts minutes to a cron spec.
func (s *Scheduler) intervalSpec(minutes int) string {
	interval := time.Duration(minutes) * time.Minute
	if interval < time.Minute {
		interval = s.defaultInterval
	}
	return "@every " + interval.String()
}

// ScheduledFeeds returns the URLs of the currently scheduled feeds, sorted.
func (s *Scheduler) ScheduledFeeds() []string {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	urls := make([]string, 0, len(s.jobs))
	for url := range s.jobs {
		urls = append(urls, url)
	}
	slices.Sort(urls)
	return urls
}

// NextRun returns the next scheduled run time for a feed.
func (s *Scheduler) NextRun(url string) *time.Time {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	if entryID, exists := s.jobs[url]; exists {
		entry := s.cron.Entry(entryID)
		if !entry.Next.IsZero() {
			return &entry.Next
		}
	}
	return nil
}
