package notify

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/valyala/bytebufferpool"
	"github.com/valyala/fasthttp"

	"chatcore/pkg/logger"
	"chatcore/pkg/models"
)

// Config configures the outbound notification webhook.
type Config struct {
	URL       string
	Bearer    string
	QueueSize int
	Timeout   time.Duration
}

// previewLimit bounds the content preview in bytes; truncation lands on
// a rune boundary.
const previewLimit = 140

// payload is the wire shape posted for each offline-recipient signal.
type payload struct {
	Thread     string   `json:"thread"`
	ThreadName string   `json:"thread_name,omitempty"`
	MessageID  string   `json:"message_id"`
	Sender     string   `json:"sender"`
	Preview    string   `json:"preview,omitempty"`
	TS         int64    `json:"ts"`
	Recipients []string `json:"recipients"`
}

// item owns a pooled buffer holding the marshaled payload. The worker
// must call done exactly once.
type item struct {
	buf *bytebufferpool.ByteBuffer
}

func (it *item) done() {
	if it.buf != nil {
		bytebufferpool.Put(it.buf)
		it.buf = nil
	}
}

// Webhook delivers "new message for offline recipient" signals to an
// external collaborator. Delivery is strictly best-effort: enqueue never
// blocks, a full queue drops the signal, and a delivery failure is
// logged and forgotten. The originating message commit is never failed.
type Webhook struct {
	url     string
	bearer  string
	ch      chan *item
	client  *fasthttp.Client
	timeout time.Duration
	dropped uint64
}

// NewWebhook builds a webhook notifier. Returns nil when no URL is
// configured; callers wire the notifier only when it exists.
func NewWebhook(cfg Config) *Webhook {
	if cfg.URL == "" {
		return nil
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 1024
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Webhook{
		url:     cfg.URL,
		bearer:  cfg.Bearer,
		ch:      make(chan *item, size),
		client:  &fasthttp.Client{Name: "chatcore-notify"},
		timeout: timeout,
	}
}

// MessageForOffline enqueues one signal covering all offline recipients
// of the message. Non-blocking; drops when the queue is full.
func (w *Webhook) MessageForOffline(th models.Thread, m models.Message, recipients []string) {
	preview := m.Content
	if len(preview) > previewLimit {
		cut := previewLimit
		for cut > 0 && !utf8.RuneStart(preview[cut]) {
			cut--
		}
		preview = preview[:cut]
	}
	p := payload{
		Thread:     th.ID,
		ThreadName: th.Name,
		MessageID:  m.ID,
		Sender:     m.Sender,
		Preview:    preview,
		TS:         m.TS,
		Recipients: recipients,
	}
	bb := bytebufferpool.Get()
	if err := json.NewEncoder(bb).Encode(p); err != nil {
		bytebufferpool.Put(bb)
		logger.Error("notify_marshal_failed", "msg_id", m.ID, "error", err)
		return
	}
	select {
	case w.ch <- &item{buf: bb}:
	default:
		bytebufferpool.Put(bb)
		atomic.AddUint64(&w.dropped, 1)
		logger.Warn("notify_queue_full", "msg_id", m.ID)
	}
}

// Dropped returns how many signals were discarded due to a full queue.
func (w *Webhook) Dropped() uint64 { return atomic.LoadUint64(&w.dropped) }

// Start runs the delivery worker until ctx is canceled.
func (w *Webhook) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case it := <-w.ch:
				w.deliver(it)
			}
		}
	}()
}

func (w *Webhook) deliver(it *item) {
	defer it.done()
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(w.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if w.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+w.bearer)
	}
	req.SetBody(it.buf.B)

	if err := w.client.DoTimeout(req, resp, w.timeout); err != nil {
		logger.Warn("notify_delivery_failed", "error", err)
		return
	}
	if c := resp.StatusCode(); c >= 300 {
		logger.Warn("notify_delivery_rejected", "status", c)
	}
}
