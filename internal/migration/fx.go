package migration

import (
	"github.com/smallbiznis/paylens/internal/config"
	invoicedomain "github.com/smallbiznis/paylens/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/paylens/internal/payment/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// The versioned migrations target postgres. Other dialects
			// (sqlite for local runs and tests, mysql) get the schema
			// straight from the models.
			return conn.AutoMigrate(
				&invoicedomain.Invoice{},
				&paymentdomain.Payment{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
