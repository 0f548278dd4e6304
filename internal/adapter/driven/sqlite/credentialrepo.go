package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"

	"github.com/ericfisherdev/leadsync/internal/domain/model"
	"github.com/ericfisherdev/leadsync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port.
// One record is kept per installation. Access tokens are encrypted with
// AES-256-GCM before write and decrypted after read.
type CredentialRepo struct {
	db             *DB
	installationID string
	key            []byte // 32-byte AES-256 key; nil when encryption is disabled.
	validate       *validator.Validate
}

// NewCredentialRepo creates a CredentialRepo for one installation. key must be
// 32 bytes for AES-256-GCM, or nil to disable credential storage (reads and
// writes then return driven.ErrEncryptionKeyNotSet).
func NewCredentialRepo(db *DB, installationID string, key []byte) *CredentialRepo {
	return &CredentialRepo{
		db:             db,
		installationID: installationID,
		key:            key,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
	}
}

// UserAccessToken returns the stored user token, or "" if never connected.
func (r *CredentialRepo) UserAccessToken(ctx context.Context) (string, error) {
	record, err := r.Record(ctx)
	if err != nil || record == nil {
		return "", err
	}
	return record.UserAccessToken, nil
}

// Pages returns the stored page credentials in saved order.
func (r *CredentialRepo) Pages(ctx context.Context) ([]model.PageCredential, error) {
	record, err := r.Record(ctx)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return []model.PageCredential{}, nil
	}
	return record.Pages, nil
}

// Record loads the full credential record inside one read transaction so a
// concurrent Save is seen either entirely or not at all. Returns (nil, nil)
// when nothing is stored.
func (r *CredentialRepo) Record(ctx context.Context) (*model.CredentialRecord, error) {
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	tx, err := r.db.Reader.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin read: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const recordQuery = `SELECT user_id, user_name, user_access_token, mode, updated_at
		FROM connections WHERE installation_id = ?`

	var (
		record    model.CredentialRecord
		encToken  string
		mode      string
		updatedAt string
	)
	err = tx.QueryRowContext(ctx, recordQuery, r.installationID).
		Scan(&record.User.ID, &record.User.Name, &encToken, &mode, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get connection %q: %w", r.installationID, err)
	}

	record.UserAccessToken, err = r.decrypt(encToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt user token: %w", err)
	}
	record.Mode = model.ConnectionMode(mode)
	record.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at for connection %q: %w", r.installationID, err)
	}

	record.Pages, err = r.loadPages(ctx, tx)
	if err != nil {
		return nil, err
	}

	return &record, nil
}

func (r *CredentialRepo) loadPages(ctx context.Context, tx *sql.Tx) ([]model.PageCredential, error) {
	const query = `SELECT page_id, name, access_token, subscribed
		FROM connection_pages WHERE installation_id = ? ORDER BY position`

	rows, err := tx.QueryContext(ctx, query, r.installationID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	pages := []model.PageCredential{}
	for rows.Next() {
		var page model.PageCredential
		var encToken string
		if err := rows.Scan(&page.ID, &page.Name, &encToken, &page.Subscribed); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		page.AccessToken, err = r.decrypt(encToken)
		if err != nil {
			return nil, fmt.Errorf("decrypt token for page %q: %w", page.ID, err)
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}

	return pages, nil
}

// Save validates record and replaces the stored record with it. The
// connection row and every page row are written in one transaction; on any
// failure the previous record is left untouched.
func (r *CredentialRepo) Save(ctx context.Context, record model.CredentialRecord) error {
	if err := r.validate.Struct(record); err != nil {
		return toValidationError(err)
	}

	encUserToken, err := r.encrypt(record.UserAccessToken)
	if err != nil {
		return err
	}

	encPageTokens := make([]string, len(record.Pages))
	for i, page := range record.Pages {
		encPageTokens[i], err = r.encrypt(page.AccessToken)
		if err != nil {
			return err
		}
	}

	mode := record.Mode
	if mode == "" {
		mode = model.ConnectionModeOAuth
	}

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		const upsert = `INSERT INTO connections (installation_id, user_id, user_name, user_access_token, mode, updated_at)
			VALUES (?, ?, ?, ?, ?, strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
			ON CONFLICT(installation_id) DO UPDATE SET
				user_id = excluded.user_id,
				user_name = excluded.user_name,
				user_access_token = excluded.user_access_token,
				mode = excluded.mode,
				updated_at = excluded.updated_at`
		if _, err := tx.ExecContext(ctx, upsert, r.installationID, record.User.ID, record.User.Name, encUserToken, string(mode)); err != nil {
			return fmt.Errorf("save connection %q: %w", r.installationID, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM connection_pages WHERE installation_id = ?`, r.installationID); err != nil {
			return fmt.Errorf("clear pages: %w", err)
		}

		const insertPage = `INSERT INTO connection_pages (installation_id, position, page_id, name, access_token, subscribed)
			VALUES (?, ?, ?, ?, ?, ?)`
		for i, page := range record.Pages {
			if _, err := tx.ExecContext(ctx, insertPage, r.installationID, i, page.ID, page.Name, encPageTokens[i], page.Subscribed); err != nil {
				return fmt.Errorf("save page %q: %w", page.ID, err)
			}
		}

		return nil
	})
}

// Clear removes the stored record and its pages.
func (r *CredentialRepo) Clear(ctx context.Context) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM connection_pages WHERE installation_id = ?`, r.installationID); err != nil {
			return fmt.Errorf("clear pages: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM connections WHERE installation_id = ?`, r.installationID); err != nil {
			return fmt.Errorf("clear connection %q: %w", r.installationID, err)
		}
		return nil
	})
}

// toValidationError turns validator field errors into one readable message.
func toValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &driven.ValidationError{Err: err}
	}

	errs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			errs = append(errs, fmt.Errorf("%s is required", fe.Namespace()))
		case "unique":
			errs = append(errs, fmt.Errorf("%s must not contain duplicate page ids", fe.Namespace()))
		default:
			errs = append(errs, fmt.Errorf("%s failed %q check", fe.Namespace(), fe.Tag()))
		}
	}
	return &driven.ValidationError{Err: errors.Join(errs...)}
}

// encrypt encrypts plaintext using AES-256-GCM and returns a base64-encoded string
// containing the nonce (12 bytes) prepended to the ciphertext.
func (r *CredentialRepo) encrypt(plaintext string) (string, error) {
	if r.key == nil {
		return "", driven.ErrEncryptionKeyNotSet
	}

	gcm, err := r.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts a base64-encoded AES-256-GCM ciphertext.
func (r *CredentialRepo) decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	gcm, err := r.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("gcm.Open: %w", err)
	}

	return string(plaintext), nil
}

func (r *CredentialRepo) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(r.key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}
