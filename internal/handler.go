package internal

import (
	"bufio"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler HTTP 請求處理器
//
// 與 WebSocket 傳輸共用同一個 listener：帶 Upgrade 標頭的 GET / 交給 ws，
// 其餘是唯讀的監控端點。
type Handler struct {
	hub      *Hub
	ws       http.Handler
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// NewHandler 創建 HTTP 處理器；ws 或 gatherer 為 nil 時對應路由回 404
func NewHandler(hub *Hub, ws http.Handler, gatherer prometheus.Gatherer, logger *slog.Logger) *Handler {
	return &Handler{
		hub:      hub,
		ws:       ws,
		gatherer: gatherer,
		logger:   logger,
	}
}

// Routes 設定路由
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(h.recoverer, h.loggerMiddleware)

	r.Get("/", h.index)
	r.Get("/health", h.health)
	r.Get("/stats", h.stats)
	r.Get("/rooms", h.listRooms)
	r.Get("/rooms/{room_id}", h.getRoomDetail)
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// roomDetail 房間摘要加上成員
type roomDetail struct {
	RoomInfo
	Peers     []PeerInfo `json:"peers"`
	Observers int        `json:"observers"`
}

// index WebSocket 升級或簡短說明
func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) && h.ws != nil {
		h.ws.ServeHTTP(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("room server " + Version + "\n"))
}

// health 健康檢查
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
	}, http.StatusOK)
}

// stats 統計資訊
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	var (
		status Status
		rooms  []RoomInfo
	)
	err := h.hub.Do(r.Context(), func(s *Server) {
		status = s.Status()
		rooms = make([]RoomInfo, 0, status.Rooms)
		for _, room := range s.Rooms() {
			rooms = append(rooms, room.Info())
		}
	})
	if err != nil {
		h.hubError(w, err)
		return
	}

	h.jsonResponse(w, map[string]any{
		"status": status,
		"rooms":  rooms,
	}, http.StatusOK)
}

// listRooms 列出公開房間，與 DiscoverRooms 的結果相同
func (h *Handler) listRooms(w http.ResponseWriter, r *http.Request) {
	joinCode := r.URL.Query().Get("joincode")

	var rooms []RoomInfo
	err := h.hub.Do(r.Context(), func(s *Server) {
		found := s.DiscoverRooms(joinCode)
		rooms = make([]RoomInfo, 0, len(found))
		for _, room := range found {
			rooms = append(rooms, room.Info())
		}
	})
	if err != nil {
		h.hubError(w, err)
		return
	}

	h.jsonResponse(w, map[string]any{
		"rooms":   rooms,
		"total":   len(rooms),
		"version": Version,
	}, http.StatusOK)
}

// getRoomDetail 獲取房間詳情
func (h *Handler) getRoomDetail(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room_id")

	var (
		detail roomDetail
		found  bool
	)
	err := h.hub.Do(r.Context(), func(s *Server) {
		room, ok := s.Room(roomID)
		if !ok {
			return
		}
		found = true
		detail = roomDetail{
			RoomInfo:  room.Info(),
			Peers:     room.PeerInfos(),
			Observers: len(room.Observers()),
		}
	})
	if err != nil {
		h.hubError(w, err)
		return
	}
	if !found {
		h.errorResponse(w, "房間不存在: "+roomID, http.StatusNotFound)
		return
	}

	h.jsonResponse(w, detail, http.StatusOK)
}

func (h *Handler) hubError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrHubStopped) {
		h.errorResponse(w, "服務器正在關閉", http.StatusServiceUnavailable)
		return
	}
	h.errorResponse(w, err.Error(), http.StatusGatewayTimeout)
}

// jsonResponse 返回 JSON 響應
func (h *Handler) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("編碼 JSON 失敗", "error", err)
	}
}

// errorResponse 返回錯誤響應
func (h *Handler) errorResponse(w http.ResponseWriter, message string, status int) {
	h.jsonResponse(w, map[string]any{
		"error": message,
	}, status)
}

// loggerMiddleware 日誌中間件
func (h *Handler) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(ww, r)

		h.logger.Info("HTTP 請求",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start))
	})
}

// recoverer panic 恢復中間件
func (h *Handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.logger.Error("處理請求時發生 panic",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path)

				h.errorResponse(w, "內部伺服器錯誤", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// responseWriter 包裝 ResponseWriter 以獲取狀態碼
//
// WebSocket 升級需要 Hijack，因此一併轉發。
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("底層 ResponseWriter 不支援 Hijack")
	}
	w.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
