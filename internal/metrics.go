package internal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "roomserver"

// Metrics 服務器的 Prometheus 指標
//
// 所有方法對 nil 接收者安全，未啟用指標時 Server 直接持有 nil。
type Metrics struct {
	connections     prometheus.Gauge
	rooms           prometheus.Gauge
	messagesIn      prometheus.Counter
	bytesIn         prometheus.Counter
	bytesOut        prometheus.Counter
	roomsCreated    prometheus.Counter
	roomsDestroyed  prometheus.Counter
	commands        *prometheus.CounterVec
	invalidCommands prometheus.Counter
	joinsRejected   prometheus.Counter
}

// NewMetrics 在 reg 上註冊所有指標
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connections",
			Help:      "目前的連接數",
		}),
		rooms: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "rooms",
			Help:      "目前存活的房間數",
		}),
		messagesIn: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_received_total",
			Help:      "收到的封包總數",
		}),
		bytesIn: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "received_bytes_total",
			Help:      "收到的位元組總數",
		}),
		bytesOut: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sent_bytes_total",
			Help:      "送出的位元組總數",
		}),
		roomsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rooms_created_total",
			Help:      "創建的房間總數",
		}),
		roomsDestroyed: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rooms_destroyed_total",
			Help:      "銷毀的房間總數",
		}),
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commands_total",
			Help:      "依類型統計的服務器指令數",
		}, []string{"type"}),
		invalidCommands: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "invalid_commands_total",
			Help:      "格式錯誤而被丟棄的指令數",
		}),
		joinsRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "joins_rejected_total",
			Help:      "被拒絕的加入請求數",
		}),
	}
}

// ObserveRooms 訂閱房間生命週期
func (m *Metrics) ObserveRooms(s *Server) {
	if m == nil {
		return
	}
	s.OnRoomEvent(func(ev RoomEvent) {
		switch ev.Kind {
		case RoomCreated:
			m.roomsCreated.Inc()
			m.rooms.Inc()
		case RoomDestroyed:
			m.roomsDestroyed.Inc()
			m.rooms.Dec()
		}
	})
}

func (m *Metrics) connectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) connectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) messageIn(n int) {
	if m != nil {
		m.messagesIn.Inc()
		m.bytesIn.Add(float64(n))
	}
}

func (m *Metrics) messageOut(n int) {
	if m != nil {
		m.bytesOut.Add(float64(n))
	}
}

func (m *Metrics) command(typ string) {
	if m != nil {
		m.commands.WithLabelValues(typ).Inc()
	}
}

func (m *Metrics) invalidCommand() {
	if m != nil {
		m.invalidCommands.Inc()
	}
}

func (m *Metrics) joinRejected() {
	if m != nil {
		m.joinsRejected.Inc()
	}
}
