package services

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/thereayou/cipherchat/internal/crypto"
	"github.com/thereayou/cipherchat/internal/models"
)

type SyncState int

const (
	Unsubscribed SyncState = iota
	Loading
	Live
)

func (s SyncState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Live:
		return "live"
	default:
		return "unsubscribed"
	}
}

// MessageSync держит не больше одной живой подписки на сообщения комнаты.
// Переключение комнаты синхронно снимает прежнюю подписку до открытия новой,
// поэтому лента старой комнаты никогда не попадет к потребителю новой.
type MessageSync struct {
	store    DocumentStore
	keys     crypto.KeyProvider
	viewer   models.Session
	receipts *ReceiptTracker
	opts     options

	// opMu сериализует Open и Close
	opMu sync.Mutex

	mu      sync.Mutex
	state   SyncState
	roomID  string
	gen     uint64
	current Timeline
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewMessageSync(store DocumentStore, keys crypto.KeyProvider, viewer models.Session, opts ...Option) *MessageSync {
	o := buildOptions("message_sync", opts)
	receipts := o.receipts
	if receipts == nil && !o.noReceipts {
		receipts = NewReceiptTracker(store)
	}
	return &MessageSync{
		store:    store,
		keys:     keys,
		viewer:   viewer,
		receipts: receipts,
		opts:     o,
	}
}

// Open переключает синхронизацию на комнату. Канал закрывается при
// следующем Open, Close или ошибке подписки.
func (s *MessageSync) Open(ctx context.Context, room models.Room) (<-chan Timeline, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.teardown()

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.state = Loading
	s.roomID = room.ID
	s.current = Timeline{RoomID: room.ID}
	s.mu.Unlock()

	log := s.opts.log.WithFields(logrus.Fields{
		"room_id": room.ID,
		"uid":     s.viewer.UID,
	})

	key, err := s.keys.KeyFor(room.ID)
	if err != nil {
		s.reset(gen)
		return nil, backendError("resolve key", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub, err := s.store.Subscribe(subCtx, Query{
		Collection: CollectionMessages,
		Where:      []Filter{{Field: models.MessageFieldRoomID, Value: room.ID}},
		OrderBy:    models.MessageFieldCreatedAt,
		Descending: true,
		Limit:      s.opts.historyLimit,
	})
	if err != nil {
		cancel()
		s.reset(gen)
		log.WithError(err).Error("Failed to subscribe to messages")
		return nil, backendError("subscribe messages", err)
	}

	out := make(chan Timeline)
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	w := &syncWorker{
		sync:   s,
		gen:    gen,
		roomID: room.ID,
		key:    key,
		sub:    sub,
		out:    out,
		done:   done,
		marked: make(map[string]bool),
		log:    log,
	}
	go w.run(subCtx)

	log.Debug("Message sync opened")
	return out, nil
}

// Close снимает подписку. После возврата в канал ничего не придет.
func (s *MessageSync) Close() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.teardown()

	s.mu.Lock()
	s.gen++
	s.state = Unsubscribed
	s.roomID = ""
	s.current = Timeline{}
	s.mu.Unlock()
}

func (s *MessageSync) State() SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *MessageSync) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// Current последняя доставленная лента
func (s *MessageSync) Current() Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *MessageSync) Viewer() models.Session {
	return s.viewer
}

func (s *MessageSync) teardown() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *MessageSync) reset(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.state = Unsubscribed
	}
}

// publish сохраняет ленту, если поколение еще актуально
func (s *MessageSync) publish(gen uint64, tl Timeline) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	s.current = tl
	if tl.Err != nil {
		s.state = Unsubscribed
	} else {
		s.state = Live
	}
	return true
}

// syncWorker обрабатывает снимки одного поколения подписки по одному
type syncWorker struct {
	sync   *MessageSync
	gen    uint64
	roomID string
	key    crypto.Key
	sub    Subscription
	out    chan Timeline
	done   chan struct{}
	marked map[string]bool
	log    *logrus.Entry
}

func (w *syncWorker) run(ctx context.Context) {
	defer close(w.done)
	defer close(w.out)
	// к закрытию канала состояние этого поколения уже сброшено
	defer w.sync.reset(w.gen)
	defer w.sub.Unsubscribe()

	for {
		var snap Snapshot
		select {
		case <-ctx.Done():
			return
		case s, ok := <-w.sub.Changes():
			if !ok {
				return
			}
			snap = s
		}

		var tl Timeline
		if snap.Err != nil {
			w.log.WithError(snap.Err).Error("Message subscription failed")
			tl = Timeline{RoomID: w.roomID, Err: backendError("message subscription", snap.Err)}
		} else {
			tl = w.build(ctx, snap.Docs)
		}

		if ctx.Err() != nil || !w.sync.publish(w.gen, tl) {
			return
		}

		select {
		case w.out <- tl:
		case <-ctx.Done():
			return
		}

		if snap.Err != nil {
			return
		}
	}
}

func (w *syncWorker) build(ctx context.Context, docs []models.Document) Timeline {
	opts := w.sync.opts
	viewer := w.sync.viewer
	now := opts.now()

	tl := Timeline{RoomID: w.roomID}
	entries := make([]Entry, 0, len(docs))

	for _, doc := range docs {
		msg, err := models.DecodeMessage(doc)
		if err != nil {
			w.log.WithError(err).WithField("message_id", doc.ID).Warn("Skipping malformed message")
			tl.Skipped++
			continue
		}
		if msg.RoomID != w.roomID {
			w.log.WithField("message_id", msg.ID).Warn("Skipping message from another room")
			tl.Skipped++
			continue
		}

		entry := Entry{Message: msg}
		text, err := crypto.Decrypt(msg.CipherText, w.key, msg.IV)
		if err != nil {
			entry.DecryptErr = err
			entry.Text = UndecryptableText
		} else {
			entry.Text = text
		}

		isAuthor := viewer.UID != "" && viewer.UID == msg.Author.UID
		entry.Deletable = isAuthor
		entry.Editable = isAuthor && opts.policy.IsEditable(msg, now)

		w.markRead(ctx, &entry)
		entries = append(entries, entry)
	}

	SortEntries(entries)
	tl.Groups = GroupByDate(entries, opts.location)
	return tl
}

// markRead пишет отметку не больше одного раза за поколение,
// даже если снимок с обновленным списком читателей еще не пришел
func (w *syncWorker) markRead(ctx context.Context, entry *Entry) {
	tracker := w.sync.receipts
	uid := w.sync.viewer.UID
	msg := entry.Message

	if tracker == nil || uid == "" || msg.ReadByUser(uid) {
		return
	}
	if ok, seen := w.marked[msg.ID]; seen {
		// неудачная отметка не повторяется
		if ok {
			entry.Message.ReadBy, _ = MergeReaders(msg.ReadBy, uid)
		}
		return
	}

	readers, err := tracker.MarkRead(ctx, msg, uid)
	w.marked[msg.ID] = err == nil
	if err != nil {
		return
	}
	entry.Message.ReadBy = readers
}
