package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/inkwell/utils"
)

// Domain event names.
const (
	EventUserRegistered   = "user.registered"
	EventUserBanned       = "user.banned"
	EventUserBlocked      = "user.blocked"
	EventUserRolesChanged = "user.roles_changed"
	EventUserFollowed     = "user.followed"

	EventArticleCreated   = "article.created"
	EventArticleUpdated   = "article.updated"
	EventArticleApproved  = "article.approved"
	EventArticleRejected  = "article.rejected"
	EventArticlePublished = "article.published"
	EventArticleArchived  = "article.archived"
	EventArticleRestored  = "article.restored"
	EventArticleTrashed   = "article.trashed"
	EventArticleDeleted   = "article.deleted"
	EventArticleReported  = "article.reported"
	EventArticleLiked     = "article.liked"
	EventArticleDisliked  = "article.disliked"

	EventCommentCreated   = "comment.created"
	EventCommentModerated = "comment.moderated"
	EventCommentDeleted   = "comment.deleted"
	EventCommentReported  = "comment.reported"

	EventMediaUploaded = "media.uploaded"
	EventMediaDeleted  = "media.deleted"

	EventNewsletterSubscribed   = "newsletter.subscribed"
	EventNewsletterVerified     = "newsletter.verified"
	EventNewsletterUnsubscribed = "newsletter.unsubscribed"

	EventNotificationCreated = "notification.created"
)

// AllEvents subscribes a listener to every event.
const AllEvents = "*"

// Event is an immutable record of something that happened in a service.
type Event struct {
	Name       string
	SubjectID  uint
	ActorID    uint
	Payload    map[string]interface{}
	OccurredAt time.Time
}

// Listener handles one event. Listeners must be idempotent: a failed delivery is retried.
type Listener func(ctx context.Context, e Event) error

type namedListener struct {
	name string
	fn   Listener
}

// Dispatcher delivers events to listeners on a worker pool. Dispatch never blocks the caller.
type Dispatcher struct {
	queue     chan Event
	mu        sync.RWMutex
	listeners map[string][]namedListener
	retries   int
	backoff   time.Duration
	workers   sync.WaitGroup
	sendMu    sync.RWMutex
	closed    bool

	// inflight counts dispatched but unfinished events, queued or detached.
	inflightMu sync.Mutex
	inflight   int
	idle       *sync.Cond
}

// NewDispatcher starts workers goroutines reading from a queue of queueSize events.
func NewDispatcher(workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	d := &Dispatcher{
		queue:     make(chan Event, queueSize),
		listeners: map[string][]namedListener{},
		retries:   3,
		backoff:   100 * time.Millisecond,
	}
	d.idle = sync.NewCond(&d.inflightMu)
	for i := 0; i < workers; i++ {
		d.workers.Add(1)
		go func() {
			defer d.workers.Done()
			for e := range d.queue {
				d.deliver(e)
			}
		}()
	}
	return d
}

// Subscribe registers fn for event (or AllEvents). name identifies the listener in logs.
func (d *Dispatcher) Subscribe(event, name string, fn Listener) {
	d.mu.Lock()
	d.listeners[event] = append(d.listeners[event], namedListener{name: name, fn: fn})
	d.mu.Unlock()
}

// Dispatch enqueues e. When the queue is full or closed the event is delivered on its own goroutine.
func (d *Dispatcher) Dispatch(e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	d.sendMu.RLock()
	defer d.sendMu.RUnlock()
	d.track()
	if d.closed {
		go d.deliver(e)
		return
	}
	select {
	case d.queue <- e:
	default:
		go d.deliver(e)
	}
}

// Drain waits until every dispatched event has been handled.
func (d *Dispatcher) Drain() {
	d.inflightMu.Lock()
	for d.inflight > 0 {
		d.idle.Wait()
	}
	d.inflightMu.Unlock()
}

func (d *Dispatcher) track() {
	d.inflightMu.Lock()
	d.inflight++
	d.inflightMu.Unlock()
}

func (d *Dispatcher) finish() {
	d.inflightMu.Lock()
	d.inflight--
	if d.inflight == 0 {
		d.idle.Broadcast()
	}
	d.inflightMu.Unlock()
}

// Close stops accepting queued work and waits for workers to finish.
func (d *Dispatcher) Close() {
	d.sendMu.Lock()
	if d.closed {
		d.sendMu.Unlock()
		return
	}
	d.closed = true
	d.sendMu.Unlock()
	d.Drain()
	close(d.queue)
	d.workers.Wait()
}

func (d *Dispatcher) deliver(e Event) {
	defer d.finish()
	d.mu.RLock()
	targets := append(append([]namedListener(nil), d.listeners[e.Name]...), d.listeners[AllEvents]...)
	d.mu.RUnlock()

	for _, l := range targets {
		d.run(l, e)
	}
}

func (d *Dispatcher) run(l namedListener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			utils.Logger.Error("event listener panic", zap.String("event", e.Name), zap.String("listener", l.name), zap.Any("panic", r))
		}
	}()
	var err error
	for attempt := 1; attempt <= d.retries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = l.fn(ctx, e)
		cancel()
		if err == nil {
			return
		}
		utils.Logger.Warn("event listener failed",
			zap.String("event", e.Name),
			zap.String("listener", l.name),
			zap.Int("attempt", attempt),
			zap.Error(err))
		time.Sleep(d.backoff * time.Duration(attempt))
	}
	utils.Logger.Error("event dropped after retries", zap.String("event", e.Name), zap.String("listener", l.name), zap.Error(err))
}

// LogEvent is the audit listener attached to every event.
func LogEvent(_ context.Context, e Event) error {
	utils.Logger.Info("domain event",
		zap.String("event", e.Name),
		zap.Uint("subject_id", e.SubjectID),
		zap.Uint("actor_id", e.ActorID),
		zap.Any("payload", e.Payload),
		zap.Time("occurred_at", e.OccurredAt))
	return nil
}
