// Package records implements the query/command operations over stored
// machine records, independent of the HTTP transport.
package records

import (
	"context"
	"time"

	apperrors "github.com/EarthNatchanon/Topgun2/internal/errors"
	"github.com/EarthNatchanon/Topgun2/internal/models"
)

// Store is the storage gateway as seen by the service.
type Store interface {
	Insert(ctx context.Context, rec models.Record) (int64, error)
	List(ctx context.Context) ([]models.Record, error)
	Get(ctx context.Context, id int64) (models.Record, bool, error)
	Update(ctx context.Context, id int64, rec models.Record) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
	CountRange(ctx context.Context, from, to time.Time) (int64, error)
}

type Service struct {
	store Store
}

func NewService(st Store) *Service {
	return &Service{store: st}
}

// List returns every record, newest first.
func (s *Service) List(ctx context.Context) ([]models.Record, error) {
	return s.store.List(ctx)
}

// Get returns record id; found is false when it does not exist.
func (s *Service) Get(ctx context.Context, id int64) (models.Record, bool, error) {
	return s.store.Get(ctx, id)
}

// Create validates p and stores it as a new record.
func (s *Service) Create(ctx context.Context, p models.Payload) (int64, error) {
	rec, err := p.Record()
	if err != nil {
		return 0, err
	}
	return s.store.Insert(ctx, rec)
}

// Replace overwrites every measurement of record id with p.
// Returns ErrNotFound when id does not exist.
func (s *Service) Replace(ctx context.Context, id int64, p models.Payload) error {
	rec, err := p.Record()
	if err != nil {
		return err
	}
	found, err := s.store.Update(ctx, id, rec)
	if err != nil {
		return err
	}
	if !found {
		return apperrors.ErrNotFound
	}
	return nil
}

// Remove deletes record id. Returns ErrNotFound when id does not exist.
func (s *Service) Remove(ctx context.Context, id int64) error {
	found, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return apperrors.ErrNotFound
	}
	return nil
}

// Count returns the number of records stamped in [from, to). A zero bound
// leaves that side open.
func (s *Service) Count(ctx context.Context, from, to time.Time) (int64, error) {
	return s.store.CountRange(ctx, from, to)
}
