package migration

import (
	"github.com/famlyhq/famly/internal/config"
	reconciledomain "github.com/famlyhq/famly/internal/reconcile/domain"
	userdomain "github.com/famlyhq/famly/internal/user/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Run),
)

// Run applies versioned SQL migrations on postgres. The sqlite dev/test
// profile auto-migrates from the models instead; it has no advisory locks and
// no long-lived schema history to manage.
func Run(cfg config.Config, conn *gorm.DB) error {
	if cfg.Database.Driver != "postgres" {
		return conn.AutoMigrate(
			&userdomain.User{},
			&reconciledomain.PendingNotification{},
			&reconciledomain.ProcessedNotification{},
			&reconciledomain.PaymentTransaction{},
			&reconciledomain.WebhookDelivery{},
		)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}
