package files

import (
	"context"
	"encoding/json"
	"sync"

	"medoai/internal/logger"
	"medoai/internal/redis"
)

const filesChangedChannel = "files:changed"

type changeKind string

const (
	changeCreated changeKind = "created"
	changeDeleted changeKind = "deleted"
)

type changeMessage struct {
	UserID string     `json:"user_id"`
	FileID string     `json:"file_id"`
	Kind   changeKind `json:"kind"`
}

// Notifier fans out per-user change signals to live listings.
type Notifier interface {
	Notify(ctx context.Context, msg changeMessage)
	Subscribe(userID string) (<-chan struct{}, func())
}

// localHub delivers change signals inside one process.
type localHub struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func newLocalHub() *localHub {
	return &localHub{subs: make(map[string]map[chan struct{}]struct{})}
}

func (h *localHub) Notify(_ context.Context, msg changeMessage) {
	h.deliver(msg.UserID)
}

func (h *localHub) deliver(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[userID] {
		// one pending signal is enough; the watcher re-reads the whole listing
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (h *localHub) Subscribe(userID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	set := h.subs[userID]
	if set == nil {
		set = make(map[chan struct{}]struct{})
		h.subs[userID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
		})
	}
}

// redisHub publishes changes on a redis channel so every instance's
// subscribers hear about writes made elsewhere.
type redisHub struct {
	local  *localHub
	client *redis.Client
	log    *logger.Logger
}

func newRedisHub(ctx context.Context, client *redis.Client, log *logger.Logger) (*redisHub, error) {
	h := &redisHub{local: newLocalHub(), client: client, log: log}
	err := client.Subscribe(ctx, func(_, payload string) {
		var msg changeMessage
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			h.log.Warn("files change decode failed", "error", err)
			return
		}
		h.local.deliver(msg.UserID)
	}, filesChangedChannel)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (h *redisHub) Notify(ctx context.Context, msg changeMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := h.client.Publish(ctx, filesChangedChannel, payload); err != nil {
		// fall back to local delivery so this instance's watchers still refresh
		h.log.Warn("files change publish failed", "error", err, "user_id", msg.UserID)
		h.local.deliver(msg.UserID)
	}
}

func (h *redisHub) Subscribe(userID string) (<-chan struct{}, func()) {
	return h.local.Subscribe(userID)
}
