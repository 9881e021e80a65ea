package reconcile

import (
	"github.com/famlyhq/famly/internal/reconcile/repository"
	"github.com/famlyhq/famly/internal/reconcile/service"
	"github.com/famlyhq/famly/internal/reconcile/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("reconcile",
	fx.Provide(repository.ProvidePending),
	fx.Provide(repository.ProvideLedger),
	fx.Provide(repository.ProvideTransactions),
	fx.Provide(repository.ProvideDeliveries),
	fx.Provide(service.NewService),
	fx.Provide(webhook.NewService),
)
