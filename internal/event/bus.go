package event

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	// subscriberBuffer — размер буфера канала одного подписчика.
	subscriberBuffer = 16
	// queueSize — размер общей очереди доставки. Публикация при переполнении
	// не блокирует издателя: уведомление отбрасывается с записью в лог.
	queueSize = 1024
)

// SubscriberID — идентификатор подписки на шине.
type SubscriberID int64

// HandlerFunc обрабатывает одно уведомление.
type HandlerFunc func(Event)

// subscriber защищает канал подписчика от отправки после закрытия.
type subscriber struct {
	ch     chan Event
	mu     sync.RWMutex
	closed bool
}

func (s *subscriber) deliver(evt Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	s.ch <- evt
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Bus — шина уведомлений. Публикация ставит уведомление в общую очередь,
// единственная горутина доставки разносит очередь по подписчикам, поэтому
// порядок доставки совпадает с порядком публикации.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Type]map[SubscriberID]*subscriber
	lastID SubscriberID

	queue chan Event
	done  chan struct{}
	wg    sync.WaitGroup

	stopMu  sync.RWMutex
	stopped bool

	logger *zap.Logger

	published *prometheus.CounterVec
	dropped   *prometheus.CounterVec
}

// NewBus создаёт шину уведомлений и запускает горутину доставки.
// Метрики регистрируются, только если передан prometheus.Registerer.
func NewBus(logger *zap.Logger, reg prometheus.Registerer) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Bus{
		subs:   make(map[Type]map[SubscriberID]*subscriber),
		queue:  make(chan Event, queueSize),
		done:   make(chan struct{}),
		logger: logger,
	}

	if reg != nil {
		b.published = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crowdfund_events_published_total",
			Help: "Notifications accepted by the event bus.",
		}, []string{"type"})
		b.dropped = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crowdfund_events_dropped_total",
			Help: "Notifications dropped due to a full delivery queue.",
		}, []string{"type"})
		reg.MustRegister(b.published, b.dropped)
	}

	b.wg.Add(1)
	go b.dispatch()

	return b
}

func (b *Bus) dispatch() {
	defer b.wg.Done()

	for {
		select {
		case <-b.done:
			// Дораздаём уже поставленное в очередь и выходим.
			for {
				select {
				case evt := <-b.queue:
					b.fanout(evt)
				default:
					return
				}
			}
		case evt := <-b.queue:
			b.fanout(evt)
		}
	}
}

func (b *Bus) fanout(evt Event) {
	b.mu.RLock()
	byID := b.subs[evt.Type]
	list := make([]*subscriber, 0, len(byID))
	for _, s := range byID {
		list = append(list, s)
	}
	b.mu.RUnlock()

	for _, s := range list {
		s.deliver(evt)
	}
}

// Publish ставит уведомление в очередь доставки. Возвращает false, если шина
// остановлена или очередь переполнена (уведомление при этом теряется).
func (b *Bus) Publish(evt Event) bool {
	b.stopMu.RLock()
	stopped := b.stopped
	b.stopMu.RUnlock()
	if stopped {
		return false
	}

	select {
	case b.queue <- evt:
		if b.published != nil {
			b.published.WithLabelValues(string(evt.Type)).Inc()
		}
		return true
	default:
		b.logger.Warn("event queue full, dropping notification", zap.String("type", string(evt.Type)))
		if b.dropped != nil {
			b.dropped.WithLabelValues(string(evt.Type)).Inc()
		}
		return false
	}
}

// Subscribe регистрирует подписку на уведомления указанного типа и возвращает
// канал доставки. Канал закрывается при Unsubscribe или Stop.
func (b *Bus) Subscribe(t Type) (SubscriberID, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastID++
	id := b.lastID

	s := &subscriber{ch: make(chan Event, subscriberBuffer)}
	if _, ok := b.subs[t]; !ok {
		b.subs[t] = make(map[SubscriberID]*subscriber)
	}
	b.subs[t][id] = s

	return id, s.ch
}

// SubscribeFunc регистрирует обработчик уведомлений указанного типа.
// Обработчик вызывается в отдельной горутине, завершающейся при Unsubscribe
// или Stop. Паника внутри обработчика не убивает горутину доставки.
func (b *Bus) SubscribeFunc(t Type, fn HandlerFunc) SubscriberID {
	id, ch := b.Subscribe(t)
	go func() {
		for evt := range ch {
			b.invoke(t, fn, evt)
		}
	}()
	return id
}

func (b *Bus) invoke(t Type, fn HandlerFunc, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("notification handler panic",
				zap.String("type", string(t)),
				zap.Any("panic", r),
			)
		}
	}()
	fn(evt)
}

// Unsubscribe снимает подписку и закрывает её канал.
func (b *Bus) Unsubscribe(t Type, id SubscriberID) {
	b.mu.Lock()
	var toClose *subscriber
	if byID, ok := b.subs[t]; ok {
		if s, found := byID[id]; found {
			toClose = s
			delete(byID, id)
			if len(byID) == 0 {
				delete(b.subs, t)
			}
		}
	}
	b.mu.Unlock()

	if toClose != nil {
		toClose.close()
	}
}

// Stop останавливает доставку: дораздаёт очередь, закрывает каналы подписчиков
// и отклоняет дальнейшие публикации. Повторный вызов безопасен.
func (b *Bus) Stop() {
	b.stopMu.Lock()
	if b.stopped {
		b.stopMu.Unlock()
		return
	}
	b.stopped = true
	b.stopMu.Unlock()

	close(b.done)
	b.wg.Wait()

	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[Type]map[SubscriberID]*subscriber)
	b.mu.Unlock()

	for _, byID := range subs {
		for _, s := range byID {
			s.close()
		}
	}
}
