package scheduler

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/draftly/publisher/internal/repository"
	"github.com/draftly/publisher/internal/service"
)

// Scheduler is the engine's heartbeat: it wakes on a fixed interval, lists
// pending posts whose scheduled time has passed, and feeds them one at a time
// to the publish coordinator. One instance is constructed by the process
// entry point and owns all loop state.
type Scheduler struct {
	interval time.Duration
	pr       repository.ScheduledPostRepository
	ps       service.PublishService

	busy atomic.Bool

	mu      sync.Mutex
	running bool
	stop    chan struct{}
}

func New(interval time.Duration, pr repository.ScheduledPostRepository, ps service.PublishService) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		interval: interval,
		pr:       pr,
		ps:       ps,
	}
}

// Start launches the poll loop. The first poll runs immediately so a restart
// catches up on overdue posts without waiting a full interval. Starting an
// already-running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})

	go s.run(s.stop)
	log.Printf("Scheduler started, polling every %s", s.interval)
}

// Stop halts future ticks. A poll cycle already in flight finishes its
// current post list; stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	close(s.stop)
	log.Println("Scheduler stopped")
}

func (s *Scheduler) run(stop chan struct{}) {
	s.poll()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.poll()
		}
	}
}

// poll runs one cycle over the due posts. Posts are processed strictly one
// after another; each awaits all of its platform calls before the next
// starts. The busy flag is the reentrancy guard: if a cycle is still working
// when the next tick fires, the tick is skipped rather than overlapped, so
// the same post can never be double-published.
func (s *Scheduler) poll() {
	if !s.busy.CompareAndSwap(false, true) {
		log.Println("Previous poll cycle still running, skipping tick")
		return
	}
	defer s.busy.Store(false)

	ctx := context.Background()

	posts, err := s.pr.ListDue(ctx, time.Now())
	if err != nil {
		// The loop must survive a bad cycle; the next tick retries.
		log.Printf("Error listing due posts: %v", err)
		return
	}

	for _, post := range posts {
		if _, err := s.ps.ProcessPost(ctx, post.ID); err != nil {
			log.Printf("Error publishing post %d: %v", post.ID, err)
		}
	}
}
