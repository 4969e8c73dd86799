package hub

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/abluka/internal/store"
)

var ErrClosed = errors.New("hub closed")

type HubMsg interface{ isHubMsg() }

type result struct {
	rec store.Record
	err error
}

type CreateSession struct {
	Ctx    context.Context
	Record store.Record
	Reply  chan error
}

type GetSession struct {
	Ctx   context.Context
	Code  string
	Reply chan result
}

type UpdateSession struct {
	Ctx   context.Context
	Code  string
	Patch store.Patch
	Reply chan result
}

type DeleteSession struct {
	Ctx   context.Context
	Code  string
	Reply chan error
}

// Subscribe registers Outbox for changes to Code. The hub owns the channel
// from then on and closes it when the subscription ends.
type Subscribe struct {
	Code   string
	ID     string
	Outbox chan store.Change
	Reply  chan error
}

type Unsubscribe struct {
	Code string
	ID   string
}

type Stats struct {
	Subscribers map[string]int
}

type GetStats struct {
	Reply chan Stats
}

type ShutdownHub struct{}

func (CreateSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (UpdateSession) isHubMsg() {}
func (DeleteSession) isHubMsg() {}
func (Subscribe) isHubMsg()     {}
func (Unsubscribe) isHubMsg()   {}
func (GetStats) isHubMsg()      {}
func (ShutdownHub) isHubMsg()   {}

// Hub serialises access to the session store and fans every change out to
// the subscribers of that session.
type Hub struct {
	inbox  chan HubMsg
	store  store.Store
	subs   map[string]map[string]chan store.Change
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, st store.Store, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		store:  st,
		subs:   make(map[string]map[string]chan store.Change),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed once the hub has shut down.
func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateSession:
				msg.Reply <- h.store.Create(msg.Ctx, msg.Record)

			case GetSession:
				rec, err := h.store.Get(msg.Ctx, msg.Code)
				msg.Reply <- result{rec: rec, err: err}

			case UpdateSession:
				rec, err := h.store.Update(msg.Ctx, msg.Code, msg.Patch)
				if err == nil {
					h.broadcast(msg.Code, store.Change{Record: rec})
				}
				msg.Reply <- result{rec: rec, err: err}

			case DeleteSession:
				rec, err := h.store.Get(msg.Ctx, msg.Code)
				if err == nil {
					err = h.store.Delete(msg.Ctx, msg.Code)
				}
				if err == nil {
					h.broadcast(msg.Code, store.Change{Record: rec, Deleted: true})
					h.dropAll(msg.Code)
				}
				msg.Reply <- err

			case Subscribe:
				if _, err := h.store.Get(h.ctx, msg.Code); err != nil {
					close(msg.Outbox)
					msg.Reply <- err
					break
				}
				if h.subs[msg.Code] == nil {
					h.subs[msg.Code] = make(map[string]chan store.Change)
				}
				h.subs[msg.Code][msg.ID] = msg.Outbox
				msg.Reply <- nil

			case Unsubscribe:
				h.drop(msg.Code, msg.ID)

			case GetStats:
				counts := make(map[string]int, len(h.subs))
				for code, subs := range h.subs {
					counts[code] = len(subs)
				}
				msg.Reply <- Stats{Subscribers: counts}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) broadcast(code string, ch store.Change) {
	for id, out := range h.subs[code] {
		select {
		case out <- ch.Clone():
			//ok
		default:
			// Subscriber is slow/full - drop them.
			h.log.Warn("dropping slow subscriber", zap.String("code", code), zap.String("id", id))
			h.drop(code, id)
		}
	}
}

func (h *Hub) drop(code, id string) {
	subs := h.subs[code]
	if out, ok := subs[id]; ok {
		close(out)
		delete(subs, id)
	}
	if len(subs) == 0 {
		delete(h.subs, code)
	}
}

func (h *Hub) dropAll(code string) {
	for id := range h.subs[code] {
		h.drop(code, id)
	}
}

func (h *Hub) shutdown() {
	for code := range h.subs {
		h.dropAll(code)
	}
	h.cancel()
}

// send delivers msg unless ctx or the hub finishes first.
func (h *Hub) send(ctx context.Context, msg HubMsg) error {
	select {
	case h.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.ctx.Done():
		return ErrClosed
	}
}

func await[T any](ctx context.Context, h *Hub, reply chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-h.ctx.Done():
		return zero, ErrClosed
	}
}

func (h *Hub) Create(ctx context.Context, rec store.Record) error {
	reply := make(chan error, 1)
	if err := h.send(ctx, CreateSession{Ctx: ctx, Record: rec, Reply: reply}); err != nil {
		return err
	}
	err, waitErr := await(ctx, h, reply)
	if waitErr != nil {
		return waitErr
	}
	return err
}

func (h *Hub) Get(ctx context.Context, code string) (store.Record, error) {
	reply := make(chan result, 1)
	if err := h.send(ctx, GetSession{Ctx: ctx, Code: code, Reply: reply}); err != nil {
		return store.Record{}, err
	}
	res, err := await(ctx, h, reply)
	if err != nil {
		return store.Record{}, err
	}
	return res.rec, res.err
}

func (h *Hub) Update(ctx context.Context, code string, p store.Patch) (store.Record, error) {
	reply := make(chan result, 1)
	if err := h.send(ctx, UpdateSession{Ctx: ctx, Code: code, Patch: p, Reply: reply}); err != nil {
		return store.Record{}, err
	}
	res, err := await(ctx, h, reply)
	if err != nil {
		return store.Record{}, err
	}
	return res.rec, res.err
}

func (h *Hub) Delete(ctx context.Context, code string) error {
	reply := make(chan error, 1)
	if err := h.send(ctx, DeleteSession{Ctx: ctx, Code: code, Reply: reply}); err != nil {
		return err
	}
	err, waitErr := await(ctx, h, reply)
	if waitErr != nil {
		return waitErr
	}
	return err
}

// Subscribe streams changes to code until ctx ends, the session is deleted,
// or the subscriber falls behind. The channel is closed in every case.
func (h *Hub) Subscribe(ctx context.Context, code string) (<-chan store.Change, error) {
	id := uuid.NewString()
	out := make(chan store.Change, 16)
	reply := make(chan error, 1)
	if err := h.send(ctx, Subscribe{Code: code, ID: id, Outbox: out, Reply: reply}); err != nil {
		return nil, err
	}
	err, waitErr := await(ctx, h, reply)
	if waitErr != nil {
		return nil, waitErr
	}
	if err != nil {
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = h.send(context.Background(), Unsubscribe{Code: code, ID: id})
		case <-h.ctx.Done():
		}
	}()
	return out, nil
}

// Stats reports live subscriber counts per session.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	if err := h.send(ctx, GetStats{Reply: reply}); err != nil {
		return Stats{}, err
	}
	return await(ctx, h, reply)
}
