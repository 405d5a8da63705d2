package log

// 日誌欄位名稱
const (
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	FieldService = "service"

	FieldClientID      = "client_id"
	FieldTokenAddress  = "token_address"
	FieldWalletAddress = "wallet_address"
	FieldMessageID     = "message_id"
)
