package models

// Location — геоснимок на момент выпуска refresh-токена.
// Заполняется best-effort внешним резолвером и далее не обновляется.
type Location struct {
	City     string
	Country  string
	Lat      float64
	Lon      float64
	Timezone string
}
