package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// EventType — тип доменного события подсистемы сессий.
type EventType string

const (
	EventUserLoggedIn    EventType = "user_logged_in"
	EventUserLoggedOut   EventType = "user_logged_out"
	EventTokenRefreshed  EventType = "token_refreshed"
	EventReuseDetected   EventType = "refresh_reuse_detected"
	EventUserInvalidated EventType = "user_invalidated"
)

// Event — доменное событие, испускаемое после успешного перехода состояния.
// События упорядочены в рамках одного запроса; доставка — асинхронная,
// ядро не ждёт потребителей.
type Event struct {
	Type      EventType
	UserID    uuid.UUID
	SessionID uuid.UUID
	At        time.Time
	Meta      map[string]string
}

// EventSink — приёмник доменных событий.
// Реализация обязана не блокировать вызывающего.
type EventSink interface {
	Emit(e Event)
}

// emit отправляет событие, если sink сконфигурирован.
func (s *Service) emit(e Event) {
	if s.events != nil {
		s.events.Emit(e)
	}
}

// AsyncDispatcher — буферизованный диспетчер событий: Emit кладёт событие
// в канал и возвращается сразу; отдельная горутина прогоняет события по
// обработчикам в порядке поступления. При переполненном буфере событие
// отбрасывается с warn-логом — медленный потребитель не должен тормозить
// выпуск токенов.
type AsyncDispatcher struct {
	ch       chan Event
	handlers []func(Event)
	log      *slog.Logger
}

// NewAsyncDispatcher создаёт диспетчер с буфером buffer и обработчиками handlers.
func NewAsyncDispatcher(log *slog.Logger, buffer int, handlers ...func(Event)) *AsyncDispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	if log == nil {
		log = slog.Default()
	}

	return &AsyncDispatcher{
		ch:       make(chan Event, buffer),
		handlers: handlers,
		log:      log,
	}
}

// Run запускает цикл доставки; завершается по ctx. Уже буферизованные
// события дорабатываются перед выходом, новые после отмены могут быть
// отброшены в Emit.
func (d *AsyncDispatcher) Run(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				d.drain()
				return
			case e := <-d.ch:
				d.deliver(e)
			}
		}
	}()
}

func (d *AsyncDispatcher) deliver(e Event) {
	for _, h := range d.handlers {
		h(e)
	}
}

// drain добирает события, оставшиеся в буфере на момент отмены.
func (d *AsyncDispatcher) drain() {
	for {
		select {
		case e := <-d.ch:
			d.deliver(e)
		default:
			return
		}
	}
}

// Emit реализует EventSink.
func (d *AsyncDispatcher) Emit(e Event) {
	select {
	case d.ch <- e:
	default:
		d.log.Warn("event_dropped",
			slog.String("type", string(e.Type)),
			slog.String("user_id", e.UserID.String()),
		)
	}
}
