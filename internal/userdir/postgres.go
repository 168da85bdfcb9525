package userdir

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ganot/teamescrow/internal/domain/ledger"
	"github.com/ganot/teamescrow/internal/domain/profile"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// User is the marketplace users row the engine reads and adjusts.
type User struct {
	ID                string   `gorm:"primaryKey;type:varchar(64)"`
	Name              string   `gorm:"not null;default:''"`
	Email             string   `gorm:"not null;default:''"`
	Role              string   `gorm:"not null;default:'freelancer';index"`
	Skills            []string `gorm:"serializer:json;type:text"`
	Rating            float64  `gorm:"not null;default:0"`
	CompletedProjects int      `gorm:"not null;default:0"`
	Availability      string   `gorm:"not null;default:'offline'"`
	AccountStatus     string   `gorm:"not null;default:'active';index"`
	Balance           int64    `gorm:"not null;default:0"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// BalanceAdjustment records every key applied to a balance.
type BalanceAdjustment struct {
	ID        uint   `gorm:"primaryKey"`
	Key       string `gorm:"uniqueIndex;not null;type:varchar(255)"`
	UserID    string `gorm:"index;not null;type:varchar(64)"`
	Delta     int64  `gorm:"not null"`
	Reason    string `gorm:"not null;default:''"`
	CreatedAt time.Time
}

func (u User) toProfile() profile.Profile {
	return profile.Profile{
		UserID:            u.ID,
		Name:              u.Name,
		Email:             u.Email,
		Role:              profile.Role(u.Role),
		Skills:            u.Skills,
		Rating:            u.Rating,
		CompletedProjects: u.CompletedProjects,
		Availability:      profile.Availability(u.Availability),
		AccountStatus:     profile.AccountStatus(u.AccountStatus),
	}
}

// Postgres is the directory backed by the marketplace database.
type Postgres struct {
	db     *gorm.DB
	logger *slog.Logger
}

// OpenPostgres connects to dsn.
func OpenPostgres(dsn string, log *slog.Logger) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to user directory: %w", err)
	}
	return NewPostgres(db, log), nil
}

// NewPostgres wraps an open gorm handle.
func NewPostgres(db *gorm.DB, log *slog.Logger) *Postgres {
	if log == nil {
		log = slog.Default()
	}
	return &Postgres{db: db, logger: log}
}

// Migrate creates the directory tables when they do not exist.
func (p *Postgres) Migrate() error {
	if err := p.db.AutoMigrate(&User{}, &BalanceAdjustment{}); err != nil {
		return fmt.Errorf("failed to migrate user directory: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetBalance returns the user's spendable balance.
func (p *Postgres) GetBalance(ctx context.Context, userID string) (ledger.Money, error) {
	var u User
	if err := p.db.WithContext(ctx).Select("id", "balance").Where("id = ?", userID).First(&u).Error; err != nil {
		return 0, notFound(err)
	}
	return ledger.Money(u.Balance), nil
}

// AdjustBalance applies delta once per key. The conditional update keeps the
// balance non-negative.
func (p *Postgres) AdjustBalance(ctx context.Context, userID string, delta ledger.Money, key, reason string) (ledger.Money, error) {
	var balance int64
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing BalanceAdjustment
		err := tx.Where("key = ?", key).Limit(1).Find(&existing).Error
		if err != nil {
			return err
		}
		if existing.ID != 0 {
			var u User
			if err := tx.Select("id", "balance").Where("id = ?", userID).First(&u).Error; err != nil {
				return notFound(err)
			}
			balance = u.Balance
			return nil
		}

		result := tx.Model(&User{}).
			Where("id = ? AND balance + ? >= 0", userID, int64(delta)).
			Update("balance", gorm.Expr("balance + ?", int64(delta)))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var u User
			if err := tx.Select("id", "balance").Where("id = ?", userID).First(&u).Error; err != nil {
				return notFound(err)
			}
			balance = u.Balance
			return ledger.ErrInsufficientBalance
		}

		if err := tx.Create(&BalanceAdjustment{
			Key:    key,
			UserID: userID,
			Delta:  int64(delta),
			Reason: reason,
		}).Error; err != nil {
			return err
		}

		var u User
		if err := tx.Select("id", "balance").Where("id = ?", userID).First(&u).Error; err != nil {
			return err
		}
		balance = u.Balance
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// A concurrent writer applied the same key first.
		p.logger.Info("balance adjustment already applied", "key", key, "user_id", userID)
		return p.GetBalance(ctx, userID)
	}
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) || errors.Is(err, ErrUserNotFound) {
			return ledger.Money(balance), err
		}
		return 0, fmt.Errorf("failed to adjust balance: %w", err)
	}
	return ledger.Money(balance), nil
}

// GetProfile returns the user's profile.
func (p *Postgres) GetProfile(ctx context.Context, userID string) (*profile.Profile, error) {
	var u User
	if err := p.db.WithContext(ctx).Where("id = ?", userID).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	prof := u.toProfile()
	return &prof, nil
}

// SearchFreelancers returns active freelancers sharing at least one skill with
// the query, ordered by user ID.
func (p *Postgres) SearchFreelancers(ctx context.Context, q profile.SearchQuery) ([]profile.Profile, error) {
	query := p.db.WithContext(ctx).
		Where("role = ? AND account_status = ?", string(profile.RoleFreelancer), string(profile.AccountActive)).
		Order("id ASC")
	if len(q.ExcludeIDs) > 0 {
		query = query.Where("id NOT IN ?", q.ExcludeIDs)
	}

	var users []User
	if err := query.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to search freelancers: %w", err)
	}

	wanted := profile.NormalizeSkills(q.Skills)
	var out []profile.Profile
	for _, u := range users {
		prof := u.toProfile()
		if len(wanted) > 0 && prof.MatchCount(wanted) == 0 {
			continue
		}
		out = append(out, prof)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// RecordCompletion stores the freelancer's new rating and completion count.
func (p *Postgres) RecordCompletion(ctx context.Context, userID string, rating float64, completed int) error {
	result := p.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Updates(map[string]any{
		"rating":             rating,
		"completed_projects": completed,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to record completion: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUserNotFound
	}
	return err
}
