package realtime

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/iudanet/tasksync/pkg/api"
)

// Hub реестр живых соединений: user id → множество соединений.
// Пользователь может держать несколько реплик одновременно; новое
// соединение не вытесняет существующие. Весь доступ к реестру идет
// через один управляющий цикл, читающий выделенные каналы — никакой
// разделяемой мапы под мьютексом из произвольных горутин.
type Hub struct {
	logger     *slog.Logger
	register   chan *Conn
	unregister chan *Conn
	notify     chan notification
	queries    chan query
	stopped    chan struct{}
	conns      map[string]map[*Conn]struct{}
}

// notification одно событие для рассылки всем соединениям пользователя
type notification struct {
	userID string
	event  api.Event
}

// query read-only запрос к реестру, отвечает управляющий цикл
type query struct {
	reply  chan int
	userID string
	kind   queryKind
}

type queryKind int

const (
	queryIsOnline queryKind = iota
	queryConnectionCount
)

// NewHub creates a new connection hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:     logger,
		register:   make(chan *Conn),
		unregister: make(chan *Conn),
		notify:     make(chan notification, 64),
		queries:    make(chan query),
		stopped:    make(chan struct{}),
		conns:      make(map[string]map[*Conn]struct{}),
	}
}

// Run запускает управляющий цикл. Блокируется до отмены контекста;
// только этот цикл мутирует реестр.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case c := <-h.register:
			h.addConn(c)

		case c := <-h.unregister:
			h.removeConn(c)

		case n := <-h.notify:
			h.fanOut(n)

		case q := <-h.queries:
			h.answer(q)
		}
	}
}

// Register добавляет соединение в реестр
func (h *Hub) Register(c *Conn) {
	select {
	case h.register <- c:
	case <-h.stopped:
		c.close()
	}
}

// Unregister убирает соединение из реестра
func (h *Hub) Unregister(c *Conn) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
		c.close()
	}
}

// Notify доставляет событие каждому живому соединению пользователя.
// Доставка best-effort через ограниченный буфер соединения.
func (h *Hub) Notify(userID string, event api.Event) {
	select {
	case h.notify <- notification{userID: userID, event: event}:
	case <-h.stopped:
	}
}

// IsOnline reports whether the user has at least one live connection
func (h *Hub) IsOnline(userID string) bool {
	reply := make(chan int, 1)
	select {
	case h.queries <- query{kind: queryIsOnline, userID: userID, reply: reply}:
		return <-reply > 0
	case <-h.stopped:
		return false
	}
}

// ConnectionCount returns the total number of live connections
func (h *Hub) ConnectionCount() int {
	reply := make(chan int, 1)
	select {
	case h.queries <- query{kind: queryConnectionCount, reply: reply}:
		return <-reply
	case <-h.stopped:
		return 0
	}
}

func (h *Hub) addConn(c *Conn) {
	set, ok := h.conns[c.userID]
	if !ok {
		set = make(map[*Conn]struct{})
		h.conns[c.userID] = set
	}
	set[c] = struct{}{}

	h.logger.Info("connection registered",
		"conn_id", c.id,
		"user_id", c.userID,
		"user_connections", len(set),
	)
}

func (h *Hub) removeConn(c *Conn) {
	set, ok := h.conns[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}

	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, c.userID)
	}
	c.close()

	h.logger.Info("connection unregistered", "conn_id", c.id, "user_id", c.userID)
}

// fanOut рассылает событие соединениям пользователя.
// Переполненный буфер соединения означает медленного читателя:
// такое соединение выбрасывается из реестра, а не блокирует цикл —
// один медленный читатель не должен задерживать доставку остальным.
func (h *Hub) fanOut(n notification) {
	set, ok := h.conns[n.userID]
	if !ok {
		return
	}

	payload, err := json.Marshal(n.event)
	if err != nil {
		h.logger.Error("failed to marshal event", "error", err)
		return
	}

	for c := range set {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("slow reader evicted",
				"conn_id", c.id,
				"user_id", c.userID,
			)
			h.removeConn(c)
		}
	}
}

func (h *Hub) answer(q query) {
	switch q.kind {
	case queryIsOnline:
		q.reply <- len(h.conns[q.userID])
	case queryConnectionCount:
		total := 0
		for _, set := range h.conns {
			total += len(set)
		}
		q.reply <- total
	}
}

func (h *Hub) closeAll() {
	for _, set := range h.conns {
		for c := range set {
			c.close()
		}
	}
	h.conns = make(map[string]map[*Conn]struct{})
}
