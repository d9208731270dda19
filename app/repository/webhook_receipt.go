package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/audiotailoc/ms-go-payments/app/entity"
)

// ErrReceiptAlreadyExists is the losing side of the idempotency race: the
// unique key on (provider, external_ref) rejected the insert because another
// delivery of the same webhook got there first.
var ErrReceiptAlreadyExists = errors.New("webhook receipt already exists")

type WebhookReceiptRepository struct {
	db DBTX
}

func NewWebhookReceiptRepository(db DBTX) *WebhookReceiptRepository {
	return &WebhookReceiptRepository{db: db}
}

func (r *WebhookReceiptRepository) InsertTx(ctx context.Context, tx DBTX, receipt *entity.WebhookReceipt) error {
	query := `
		INSERT INTO webhook_receipts (provider, external_ref, result_status, processed_at)
		VALUES (?, ?, ?, ?)
	`

	result, err := tx.ExecContext(ctx, query,
		receipt.Provider,
		receipt.ExternalRef,
		receipt.ResultStatus,
		receipt.ProcessedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrReceiptAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	receipt.ID = uint64(id)
	return nil
}

func (r *WebhookReceiptRepository) FindByKey(ctx context.Context, provider int32, externalRef string) (*entity.WebhookReceipt, error) {
	query := `
		SELECT id, provider, external_ref, result_status, processed_at
		FROM webhook_receipts
		WHERE provider = ? AND external_ref = ?
	`

	receipt := &entity.WebhookReceipt{}
	err := r.db.QueryRowContext(ctx, query, provider, externalRef).Scan(
		&receipt.ID,
		&receipt.Provider,
		&receipt.ExternalRef,
		&receipt.ResultStatus,
		&receipt.ProcessedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return receipt, nil
}
