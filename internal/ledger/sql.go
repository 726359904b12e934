package ledger

import (
	"context"
	"fmt"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const statsTable = "localroute_stats"

// statRow 单个计数器一行
type statRow struct {
	Name  string `gorm:"primaryKey;size:64"`
	Value int64  `gorm:"not null;default:0"`
}

func (statRow) TableName() string { return statsTable }

// SQLStore keeps counters in a SQL table through gorm.
type SQLStore struct {
	db     *gorm.DB
	driver string
	logger *zap.Logger
}

// OpenSQL opens driver ("sqlite", "postgres" or "mysql") at dsn and migrates
// the counters table. An empty sqlite dsn opens a private in-memory database.
func OpenSQL(driver, dsn string, log *zap.Logger) (*SQLStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		if dsn == "" {
			dsn = ":memory:"
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s ledger: %w", driver, err)
	}
	if driver == "sqlite" {
		// 内存库每个连接独立，限制为单连接
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	s := NewSQLStore(db, driver, log)
	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open gorm handle. The table must already exist; see
// Migrate.
func NewSQLStore(db *gorm.DB, driver string, log *zap.Logger) *SQLStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &SQLStore{
		db:     db,
		driver: driver,
		logger: log.With(zap.String("component", "ledger"), zap.String("driver", driver)),
	}
}

// Migrate creates the counters table.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&statRow{}); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", statsTable, err)
	}
	return nil
}

// Incr upserts the counter row.
func (s *SQLStore) Incr(ctx context.Context, c Counter) error {
	row := statRow{Name: string(c), Value: 1}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.Assignments(map[string]any{
			"value": gorm.Expr(statsTable+".value + ?", 1),
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to increment %s: %w", c, err)
	}
	return nil
}

func (s *SQLStore) Snapshot(ctx context.Context) (Stats, error) {
	var rows []statRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return Stats{}, fmt.Errorf("failed to read %s: %w", statsTable, err)
	}
	var st Stats
	for _, r := range rows {
		st.set(Counter(r.Name), r.Value)
	}
	return st, nil
}

func (s *SQLStore) Driver() string { return s.driver }

// Close closes the underlying connection pool.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	s.logger.Debug("closing ledger database")
	return sqlDB.Close()
}
