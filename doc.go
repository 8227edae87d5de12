// Package roomserver 是一個多人連線框架的會合與房間服務器。
//
// 客戶端以原生 TCP 或 WebSocket 連線，查詢、創建、加入房間；
// 服務器在同一房間的 peer 之間轉發封包，並同步房間與 peer 的屬性。
//
// # 封包格式
//
// 每個封包帶一個 8 位元組的目的地址（NetworkID，兩個 little-endian uint32）。
// TCP 上以 4 位元組長度前綴分框：
//
//	[u32 LE 長度 L][NetworkID 8 bytes][L-8 bytes 內容]
//
// WebSocket 每個 binary message 就是一個完整封包，編碼與 TCP 相同。
//
// 送往服務器地址 {a:0, b:1} 的封包內容是 JSON：
//
//	{"type": "Join", "args": "{\"publish\":true, ...}"}
//
// args 為二次編碼的 JSON 字串。其他地址的封包原樣轉發給同房間的其他成員。
//
// # 房間
//
// 每個房間有一個 RFC 4122 v4 uuid 與一個三字元加入碼（[a-z0-9]）。
// 加入時以 uuid 優先、其次加入碼，兩者皆無就創建新房間。
// 最後一個成員離開時房間銷毀。
//
// # 架構
//
//   - internal/message：NetworkID 與封包
//   - internal/transport：TCP / WebSocket 連接，統一成 Conn 與 Handler
//   - internal：房間、peer、指令解析、單一事件迴圈（Hub）、HTTP 監控端點
//   - cmd/server：命令列與程序組裝
//
// 所有房間狀態由 Hub 的單一 goroutine 擁有，傳輸層只把事件送進 channel，不需要加鎖。
//
// # 啟動
//
//	roomserver serve --tcp-addr :8009 --ws-addr :8010 --status-log status.log
//
// HTTP 端點與 WebSocket 共用 --ws-addr：
//   - GET /：WebSocket 升級
//   - GET /health：健康檢查
//   - GET /stats：連接數、房間數、流量
//   - GET /rooms、GET /rooms/{room_id}：房間查詢
//   - GET /metrics：Prometheus 指標
package roomserver
