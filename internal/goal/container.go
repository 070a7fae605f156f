package goal

import (
	"github.com/saulo-duarte/chronos-goals/internal/event"
	"github.com/saulo-duarte/chronos-goals/internal/forecast"
	"github.com/saulo-duarte/chronos-goals/internal/history"
	"github.com/saulo-duarte/chronos-goals/internal/lock"
	"github.com/saulo-duarte/chronos-goals/internal/metric"
	"gorm.io/gorm"
)

type Container struct {
	Handler *Handler
	Service Service
	Repo    Repository
	Teams   TeamRepository
}

func NewContainer(db *gorm.DB, provider metric.Provider, locker lock.Locker, publisher event.Publisher, trailingDays int) *Container {
	repo := NewRepository(db)
	teams := NewTeamRepository(db)

	service := NewService(Dependencies{
		DB:         db,
		Repo:       repo,
		History:    history.NewRepository(db),
		Metrics:    provider,
		Authorizer: NewScopeAuthorizer(teams),
		Locker:     locker,
		Publisher:  publisher,
		Forecast:   forecast.NewEngine(trailingDays),
	})
	handler := NewHandler(service)

	return &Container{
		Handler: handler,
		Service: service,
		Repo:    repo,
		Teams:   teams,
	}
}
