package device

import (
	"context"

	"github.com/pribylovaa/helpdesk-auth/internal/models"
)

// GeoResolver — внешний сервис "IP -> локация".
// Вызывается best-effort в момент выпуска refresh-токена; ошибка или nil
// не блокируют login/refresh, сессия просто остаётся без геоснимка.
type GeoResolver interface {
	Resolve(ctx context.Context, ip string) (*models.Location, error)
}

// NoopGeoResolver — заглушка, когда GeoIP не сконфигурирован.
type NoopGeoResolver struct{}

func (NoopGeoResolver) Resolve(_ context.Context, _ string) (*models.Location, error) {
	return nil, nil
}
