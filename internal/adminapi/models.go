package adminapi

// APIKey is the masked view of one managed upstream key.
type APIKey struct {
	ID           int64   `json:"id"`
	KeyPartial   string  `json:"key_partial"`
	IsValid      bool    `json:"is_valid"`
	FailureCount int     `json:"failure_count"`
	LastUsed     *string `json:"last_used"`
}

// KeyStats summarises the key pool.
type KeyStats struct {
	TotalKeys   int `json:"total_keys"`
	ValidKeys   int `json:"valid_keys"`
	InvalidKeys int `json:"invalid_keys"`
}

// CallStats counts proxied calls over several windows.
type CallStats struct {
	LastMinute  int `json:"last_minute"`
	LastHour    int `json:"last_hour"`
	Last24Hours int `json:"last_24_hours"`
	ThisMonth   int `json:"this_month"`
}

// AdminStats combines key and call statistics.
type AdminStats struct {
	KeyStats  KeyStats  `json:"key_stats"`
	CallStats CallStats `json:"call_stats"`
}

// ModelCallDetail is a per-model call count for one key over the last 24 hours.
type ModelCallDetail struct {
	ModelName     string `json:"model_name"`
	TotalCalls24h int    `json:"total_calls_24h"`
}

// ChartDataset is one series of the call trend.
type ChartDataset struct {
	Label string `json:"label"`
	Data  []int  `json:"data"`
}

// TrendData is the call-volume trend grouped by model.
type TrendData struct {
	Labels   []string       `json:"labels"`
	Datasets []ChartDataset `json:"datasets"`
}

// ConfigKeys reports which service-level keys are configured.
type ConfigKeys struct {
	AccessKeyPartial string `json:"access_key_partial"`
	IsAdminKeySet    bool   `json:"is_admin_key_set"`
}

// ErrorLogEntry is one recorded upstream failure.
type ErrorLogEntry struct {
	ID                 int64  `json:"id"`
	KeyPartial         string `json:"key_partial"`
	ModelName          string `json:"model_name"`
	IdentificationCode *int   `json:"identification_code"`
	ErrorMessage       string `json:"error_message"`
	Timestamp          string `json:"timestamp"`
}

// ErrorLogPage is a page of error logs.
type ErrorLogPage struct {
	Logs        []ErrorLogEntry `json:"logs"`
	TotalPages  int             `json:"total_pages"`
	CurrentPage int             `json:"current_page"`
}

// RequestLogEntry is one proxied request.
type RequestLogEntry struct {
	ID                 int64  `json:"id"`
	KeyPartial         string `json:"key_partial"`
	ModelName          string `json:"model_name"`
	IdentificationCode *int   `json:"identification_code"`
	Timestamp          string `json:"timestamp"`
}

// RequestLogPage is a page of request logs.
type RequestLogPage struct {
	Logs        []RequestLogEntry `json:"logs"`
	TotalPages  int               `json:"total_pages"`
	CurrentPage int               `json:"current_page"`
}

// APIConfig is the proxy settings document. Nil fields are left unchanged on update.
type APIConfig struct {
	APIBaseURL      *string `json:"api_base_url"`
	MaxFailureCount *int    `json:"max_failure_count"`
	MaxRetryCount   *int    `json:"max_retry_count"`
}

// SchedulerConfig is the background validation and retention settings document.
type SchedulerConfig struct {
	ValidationModel            string  `json:"validation_model"`
	ValidationModelDisplayName *string `json:"validation_model_display_name"`
	ValidationInterval         int     `json:"validation_interval"`
	SchedulerTimezone          string  `json:"scheduler_timezone"`
	ErrorLogRetentionDays      int     `json:"error_log_retention_days"`
	RequestLogRetentionDays    int     `json:"request_log_retention_days"`
}

// AvailableModel is an upstream model usable for validation.
type AvailableModel struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// DashboardData is the full authoritative snapshot served by /admin/dashboard-data.
type DashboardData struct {
	Stats           AdminStats      `json:"stats"`
	Keys            []APIKey        `json:"keys"`
	AccessKeys      []string        `json:"access_keys"`
	ErrorLogs       ErrorLogPage    `json:"error_logs"`
	APIConfig       APIConfig       `json:"api_config"`
	SchedulerConfig SchedulerConfig `json:"scheduler_config"`
	ConfigKeys      ConfigKeys      `json:"config_keys"`
	TrendData       TrendData       `json:"trend_data"`
}

// BatchAddResponse reports how many keys were actually new.
type BatchAddResponse struct {
	Message    string `json:"message"`
	AddedCount int    `json:"added_count"`
}

// BatchDeleteResponse reports how many keys were removed.
type BatchDeleteResponse struct {
	Message      string `json:"message"`
	DeletedCount int    `json:"deleted_count"`
}

// MessageResponse is the generic acknowledgement body.
type MessageResponse struct {
	Success bool   `json:"success,omitempty"`
	Message string `json:"message"`
}

type keyIDsPayload struct {
	KeyIDs []int64 `json:"key_ids"`
}

type keysPayload struct {
	Keys []string `json:"keys"`
}

type keyPayload struct {
	Key string `json:"key"`
}

type loginPayload struct {
	AdminKey string `json:"admin_key"`
}

type revealResponse struct {
	RevealedKeys map[string]string `json:"revealed_keys"`
}
