package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"errortracker/src/database"
	"errortracker/src/model"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrPersistenceConflict is returned when an upsert kept hitting transient
// conflicts until the retry budget ran out.
var ErrPersistenceConflict = errors.New("error aggregate upsert conflict")

// ErrorAggregateRepository folds occurrences into error aggregates.
type ErrorAggregateRepository struct {
	db      *gorm.DB
	retry   RetryConfig
	onRetry func(attempt int, err error)
	now     func() time.Time
}

// ErrorAggregateSearchOptions filters Search. Zero values are ignored.
type ErrorAggregateSearchOptions struct {
	Host          string
	Path          string
	Method        string
	ExceptionName string
	Since         *time.Time
	Limit         int
	Offset        int
}

// NewErrorAggregateRepository creates a repository bound to MainDB.
func NewErrorAggregateRepository() *ErrorAggregateRepository {
	return NewErrorAggregateRepositoryWithDB(database.MainDB)
}

// NewReadOnlyErrorAggregateRepository creates a repository bound to ReadOnlyDB, for queries.
func NewReadOnlyErrorAggregateRepository() *ErrorAggregateRepository {
	return NewErrorAggregateRepositoryWithDB(database.ReadOnlyDB)
}

func NewErrorAggregateRepositoryWithDB(db *gorm.DB) *ErrorAggregateRepository {
	return &ErrorAggregateRepository{
		db:    db,
		retry: DefaultRetryConfig(),
		now:   time.Now,
	}
}

// WithRetry replaces the retry budget used for upserts.
func (r *ErrorAggregateRepository) WithRetry(cfg RetryConfig) *ErrorAggregateRepository {
	r.retry = cfg
	return r
}

// WithRetryObserver registers fn to be called before every upsert retry.
func (r *ErrorAggregateRepository) WithRetryObserver(fn func(attempt int, err error)) *ErrorAggregateRepository {
	r.onRetry = fn
	return r
}

// CreateOrUpdate inserts the aggregate for the occurrence's (fingerprint, host, path, method)
// with count 1, or increments the existing one and overwrites its latest snapshot.
// It returns the aggregate as written by this call.
func (r *ErrorAggregateRepository) CreateOrUpdate(
	ctx context.Context,
	occ model.Occurrence,
) (*model.ErrorAggregate, error) {

	var saved *model.ErrorAggregate
	err := doWithRetry(ctx, r.retry, isTransient, r.onRetry, func() error {
		agg, err := r.upsert(ctx, occ)
		if err != nil {
			return err
		}
		saved = agg
		return nil
	})
	if err != nil {
		if isTransient(err) {
			return nil, fmt.Errorf("%w: %w", ErrPersistenceConflict, err)
		}
		return nil, fmt.Errorf("upsert error aggregate: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"hash":   saved.Hash,
		"method": saved.Method,
		"path":   saved.Path,
		"count":  saved.Count,
	}).Debug("Error aggregate upserted")

	return saved, nil
}

func (r *ErrorAggregateRepository) upsert(ctx context.Context, occ model.Occurrence) (*model.ErrorAggregate, error) {
	now := r.now().UTC()
	row := model.ErrorAggregate{
		Hash:          occ.Fingerprint,
		Host:          occ.Host,
		Path:          occ.Path,
		Method:        occ.Method,
		RequestData:   occ.RequestData,
		ExceptionName: occ.ExceptionName,
		Traceback:     occ.Traceback,
		Count:         1,
		CreatedOn:     now,
		LastSeen:      now,
	}

	var saved model.ErrorAggregate
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The increment happens in the database so concurrent writers never lose a count.
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "hash"},
				{Name: "host"},
				{Name: "path"},
				{Name: "method"},
			},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"count":          gorm.Expr("error_aggregates.count + 1"),
				"request_data":   occ.RequestData,
				"exception_name": occ.ExceptionName,
				"traceback":      occ.Traceback,
				"last_seen":      now,
			}),
		}).Create(&row).Error; err != nil {
			return err
		}

		return tx.
			Where("hash = ? AND host = ? AND path = ? AND method = ?", occ.Fingerprint, occ.Host, occ.Path, occ.Method).
			First(&saved).Error
	})
	if err != nil {
		return nil, err
	}

	return &saved, nil
}

// FindByID returns the aggregate with the given id.
func (r *ErrorAggregateRepository) FindByID(ctx context.Context, id uint) (*model.ErrorAggregate, error) {
	var agg model.ErrorAggregate
	if err := r.db.WithContext(ctx).First(&agg, id).Error; err != nil {
		return nil, err
	}
	return &agg, nil
}

// Search lists aggregates, most recently seen first.
func (r *ErrorAggregateRepository) Search(
	ctx context.Context,
	options ErrorAggregateSearchOptions,
) ([]model.ErrorAggregate, error) {

	query := r.db.WithContext(ctx).Model(&model.ErrorAggregate{})

	if options.Host != "" {
		query = query.Where("host = ?", options.Host)
	}
	if options.Path != "" {
		query = query.Where("path = ?", options.Path)
	}
	if options.Method != "" {
		query = query.Where("method = ?", options.Method)
	}
	if options.ExceptionName != "" {
		query = query.Where("exception_name = ?", options.ExceptionName)
	}
	if options.Since != nil {
		query = query.Where("last_seen >= ?", *options.Since)
	}

	query = query.Order("last_seen DESC, id DESC")

	if options.Limit > 0 {
		query = query.Limit(options.Limit)
	}
	if options.Offset > 0 {
		query = query.Offset(options.Offset)
	}

	var aggregates []model.ErrorAggregate
	if err := query.Find(&aggregates).Error; err != nil {
		return nil, err
	}

	return aggregates, nil
}

// AttachTicket stores the ticket reference raised for an aggregate.
func (r *ErrorAggregateRepository) AttachTicket(ctx context.Context, id uint, ticketKey string) error {
	res := r.db.WithContext(ctx).
		Model(&model.ErrorAggregate{}).
		Where("id = ?", id).
		Update("ticket_key", ticketKey)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}
