package billing

import (
	"github.com/famlyhq/famly/internal/billing/playstore"
	"github.com/famlyhq/famly/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing",
	fx.Provide(playstore.NewClient),
	fx.Provide(service.NewFetcher),
)
