package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CredentialRecord is the persisted credential row.
type CredentialRecord struct {
	ID          string                 `gorm:"primaryKey;size:36"`
	SecretHash  []byte                 `gorm:"not null"`
	Identifiers []CredentialIdentifier `gorm:"foreignKey:CredentialID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (CredentialRecord) TableName() string { return "credentials" }

// CredentialIdentifier maps one login identifier (email, username) to a credential.
type CredentialIdentifier struct {
	ID           uint   `gorm:"primaryKey"`
	CredentialID string `gorm:"size:36;index"`
	Value        string `gorm:"uniqueIndex"`
}

// GormCredentialStore keeps credentials in the site database.
type GormCredentialStore struct {
	db *gorm.DB
}

var _ CredentialStore = (*GormCredentialStore)(nil)

func NewGormCredentialStore(db *gorm.DB) *GormCredentialStore {
	return &GormCredentialStore{db: db}
}

func (s *GormCredentialStore) Migrate() error {
	return s.db.AutoMigrate(&CredentialRecord{}, &CredentialIdentifier{})
}

// NormalizeIdentifier folds case and surrounding space.
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

func (s *GormCredentialStore) FindByIdentifier(ctx context.Context, identifier string) (*Credential, error) {
	value := NormalizeIdentifier(identifier)
	if value == "" {
		return nil, ErrCredentialNotFound
	}

	var ident CredentialIdentifier
	if err := s.db.WithContext(ctx).Where("value = ?", value).First(&ident).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}

	var rec CredentialRecord
	if err := s.db.WithContext(ctx).Preload("Identifiers").First(&rec, "id = ?", ident.CredentialID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return toCredential(rec), nil
}

// Create stores a new credential owning identifiers. It fails if any
// identifier already belongs to another credential.
func (s *GormCredentialStore) Create(ctx context.Context, identifiers []string, secretHash []byte) (*Credential, error) {
	rec := CredentialRecord{ID: uuid.NewString(), SecretHash: secretHash}
	seen := make(map[string]bool)
	for _, raw := range identifiers {
		value := NormalizeIdentifier(raw)
		if value == "" || seen[value] {
			continue
		}
		seen[value] = true
		rec.Identifiers = append(rec.Identifiers, CredentialIdentifier{Value: value})
	}
	if len(rec.Identifiers) == 0 {
		return nil, errors.New("at least one identifier is required")
	}

	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("create credential: %w", err)
	}
	return toCredential(rec), nil
}

// SetSecret replaces the secret hash of the credential owning identifier,
// creating the credential when the identifier is new.
func (s *GormCredentialStore) SetSecret(ctx context.Context, identifier string, secretHash []byte) (*Credential, error) {
	existing, err := s.FindByIdentifier(ctx, identifier)
	if errors.Is(err, ErrCredentialNotFound) {
		return s.Create(ctx, []string{identifier}, secretHash)
	}
	if err != nil {
		return nil, err
	}

	rec := CredentialRecord{ID: existing.ID, SecretHash: secretHash}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"secret_hash", "updated_at"}),
	}).Omit("Identifiers").Create(&rec).Error
	if err != nil {
		return nil, fmt.Errorf("update credential secret: %w", err)
	}
	existing.SecretHash = secretHash
	return existing, nil
}

func toCredential(rec CredentialRecord) *Credential {
	cred := &Credential{ID: rec.ID, SecretHash: rec.SecretHash}
	for _, ident := range rec.Identifiers {
		cred.Identifiers = append(cred.Identifiers, ident.Value)
	}
	return cred
}
