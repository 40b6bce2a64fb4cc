package storage

import (
	"context"

	"github.com/google/uuid"

	"Prospector/internal/domain"
	"Prospector/internal/ports"
)

// LocalIDPrefix marks identifiers synthesized while the remote tier is off.
const LocalIDPrefix = "local-"

// OfflineStore stands in for the remote tier when no database is configured.
// Writes succeed without side effects.
type OfflineStore struct{}

var _ ports.RemoteStore = OfflineStore{}

// Enabled is always false.
func (OfflineStore) Enabled() bool { return false }

// CreateSession synthesizes a local identifier.
func (OfflineStore) CreateSession(_ context.Context, session domain.Session) (string, error) {
	if session.ID != "" {
		return session.ID, nil
	}
	return LocalIDPrefix + uuid.NewString(), nil
}

func (OfflineStore) CreateBusinesses(context.Context, []domain.Business) error { return nil }

func (OfflineStore) UpdateBusiness(context.Context, domain.Business) error { return nil }

func (OfflineStore) UpsertPrompt(context.Context, domain.PromptRecord) error { return nil }

func (OfflineStore) UpsertWebsite(context.Context, domain.WebsiteRecord) error { return nil }

func (OfflineStore) UpsertReview(context.Context, string, domain.WebsiteReview) error { return nil }

func (OfflineStore) UpsertOutreach(context.Context, string, domain.OutreachPackage) error {
	return nil
}
