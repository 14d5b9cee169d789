package models

// DeviceMeta — сведения о клиентском устройстве, снятые транспортом из запроса.
// Передаётся в сервис при login/refresh и фиксируется в записи refresh-токена.
type DeviceMeta struct {
	// Label — человекочитаемое имя устройства ("Chrome on Windows").
	// Если пусто — выводится из UserAgent на стороне сервиса.
	Label     string
	IP        string
	UserAgent string
}
