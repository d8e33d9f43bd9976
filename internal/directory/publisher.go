package directory

import (
	"context"

	"go.uber.org/zap"
)

type op struct {
	kind    string // "register", "update", "deregister"
	summary Summary
}

// Publisher decouples the single-threaded session loop from directory I/O.
// Sessions enqueue summary changes; a worker goroutine applies them. When the
// queue is full the oldest intent loses to the newest, which is fine because
// every update carries the full summary.
type Publisher struct {
	dir    Directory
	logger *zap.Logger
	ops    chan op
	done   chan struct{}
}

// NewPublisher starts the worker goroutine. Close the returned Publisher to
// stop it.
func NewPublisher(ctx context.Context, dir Directory, logger *zap.Logger) *Publisher {
	p := &Publisher{
		dir:    dir,
		logger: logger,
		ops:    make(chan op, 64),
		done:   make(chan struct{}),
	}
	go p.loop(ctx)
	return p
}

func (p *Publisher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(p.done)
			return
		case o := <-p.ops:
			var err error
			switch o.kind {
			case "register":
				err = p.dir.Register(ctx, o.summary)
			case "update":
				err = p.dir.Update(ctx, o.summary)
			case "deregister":
				err = p.dir.Deregister(ctx, o.summary.SessionID)
			}
			if err != nil {
				p.logger.Warn("directory publish failed",
					zap.String("op", o.kind),
					zap.String("session_id", o.summary.SessionID),
					zap.Error(err),
				)
			}
		}
	}
}

func (p *Publisher) enqueue(o op) {
	select {
	case p.ops <- o:
	default:
		// Queue full; drop. The next update carries the full summary anyway.
		p.logger.Debug("directory publish dropped",
			zap.String("op", o.kind),
			zap.String("session_id", o.summary.SessionID),
		)
	}
}

// Register enqueues a room registration.
func (p *Publisher) Register(s Summary) { p.enqueue(op{kind: "register", summary: s}) }

// Update enqueues a summary refresh.
func (p *Publisher) Update(s Summary) { p.enqueue(op{kind: "update", summary: s}) }

// Deregister enqueues a room removal.
func (p *Publisher) Deregister(sessionID string) {
	p.enqueue(op{kind: "deregister", summary: Summary{SessionID: sessionID}})
}
