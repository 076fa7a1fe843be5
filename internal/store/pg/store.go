package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/StantonManagement/sms-foundation-agent/internal/store"
)

// uniqueViolation is the Postgres error code raised on unique-constraint
// conflicts; the store treats it as "a concurrent writer won".
const uniqueViolation = "23505"

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

const conversationCols = `
	id, phone_number_canonical, COALESCE(phone_number_original,''),
	COALESCE(tenant_id,''), language_detected, language_confidence,
	last_message_at, created_at, updated_at`

func scanConversation(row pgx.Row) (store.Conversation, error) {
	var c store.Conversation
	err := row.Scan(&c.ID, &c.PhoneCanonical, &c.PhoneOriginal, &c.TenantID,
		&c.Language, &c.LanguageConfidence, &c.LastMessageAt, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *Store) GetConversationByPhone(ctx context.Context, canonical string) (store.Conversation, bool, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT `+conversationCols+`
		FROM sms_conversations WHERE phone_number_canonical=$1
	`, canonical)
	c, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Conversation{}, false, nil
		}
		return store.Conversation{}, false, err
	}
	return c, true, nil
}

func (s *Store) GetConversationByID(ctx context.Context, id int64) (store.Conversation, bool, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT `+conversationCols+`
		FROM sms_conversations WHERE id=$1
	`, id)
	c, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Conversation{}, false, nil
		}
		return store.Conversation{}, false, err
	}
	return c, true, nil
}

// GetOrCreateConversation inserts a conversation for the canonical phone,
// or returns the existing one. A concurrent insert losing the unique-key
// race reloads the winner's row; the constraint violation never escapes.
func (s *Store) GetOrCreateConversation(ctx context.Context, original, canonical string) (store.Conversation, bool, error) {
	if c, found, err := s.GetConversationByPhone(ctx, canonical); err != nil {
		return store.Conversation{}, false, err
	} else if found {
		return c, false, nil
	}

	row := s.DB.QueryRow(ctx, `
		INSERT INTO sms_conversations (phone_number_canonical, phone_number_original)
		VALUES ($1, $2)
		RETURNING `+conversationCols+`
	`, canonical, nullIfEmpty(original))
	c, err := scanConversation(row)
	if err == nil {
		return c, true, nil
	}
	if !isUniqueViolation(err) {
		return store.Conversation{}, false, err
	}

	c, found, err := s.GetConversationByPhone(ctx, canonical)
	if err != nil {
		return store.Conversation{}, false, err
	}
	if !found {
		// Winner's row vanished between conflict and reload; surface the race.
		return store.Conversation{}, false, errors.New("conversation lost after unique conflict")
	}
	return c, false, nil
}

func (s *Store) SetTenant(ctx context.Context, conversationID int64, tenantID string) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE sms_conversations SET tenant_id=$2, updated_at=now() WHERE id=$1
	`, conversationID, nullIfEmpty(tenantID))
	return err
}

// TrackTenantPhone records this canonical phone as the tenant's last used
// number by stamping the tenant onto the conversation that owns it.
func (s *Store) TrackTenantPhone(ctx context.Context, tenantID, canonical string) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE sms_conversations SET tenant_id=$1, updated_at=now()
		WHERE phone_number_canonical=$2
	`, tenantID, canonical)
	return err
}

func (s *Store) TouchLastMessageAt(ctx context.Context, conversationID int64, ts time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE sms_conversations SET last_message_at=$2, updated_at=now() WHERE id=$1
	`, conversationID, ts)
	return err
}

func (s *Store) UpdateLanguage(ctx context.Context, conversationID int64, lang string, confidence float64) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE sms_conversations SET language_detected=$2, language_confidence=$3, updated_at=now()
		WHERE id=$1
	`, conversationID, lang, confidence)
	return err
}

// FindLastKnownLanguage returns the most recently updated non-unknown
// language across a tenant's conversations.
func (s *Store) FindLastKnownLanguage(ctx context.Context, tenantID string) (string, float64, bool, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT language_detected, language_confidence
		FROM sms_conversations
		WHERE tenant_id=$1 AND language_detected <> 'unknown'
		ORDER BY updated_at DESC
		LIMIT 1
	`, tenantID)
	var lang string
	var conf float64
	if err := row.Scan(&lang, &conf); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", 0, false, nil
		}
		return "", 0, false, err
	}
	return lang, conf, true, nil
}

// ListConversationsMissingTenant returns untenanted conversations, most
// recently active first (nulls last) so the reconciler works the hot ones
// before the stale backlog.
func (s *Store) ListConversationsMissingTenant(ctx context.Context, limit, offset int) ([]store.Conversation, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+conversationCols+`
		FROM sms_conversations
		WHERE tenant_id IS NULL
		ORDER BY last_message_at DESC NULLS LAST, created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const messageCols = `
	id, conversation_id, COALESCE(provider_sid,''), direction,
	COALESCE(from_number,''), COALESCE(to_number,''), COALESCE(message_content,''),
	raw_webhook_data, COALESCE(delivery_status,''), created_at, updated_at`

func scanMessage(row pgx.Row) (store.Message, error) {
	var m store.Message
	err := row.Scan(&m.ID, &m.ConversationID, &m.ProviderSID, &m.Direction,
		&m.FromNumber, &m.ToNumber, &m.Body, &m.RawPayload, &m.DeliveryStatus,
		&m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func (s *Store) GetMessageBySID(ctx context.Context, sid string) (store.Message, bool, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT `+messageCols+`
		FROM sms_messages WHERE provider_sid=$1
	`, sid)
	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Message{}, false, nil
		}
		return store.Message{}, false, err
	}
	return m, true, nil
}

// InsertInboundMessage inserts one inbound row guarded by the provider-sid
// unique constraint. A duplicate insert reports (zero, false, nil) so the
// caller treats the race identically to an up-front duplicate lookup.
func (s *Store) InsertInboundMessage(ctx context.Context, in store.InboundMessageInsert) (store.Message, bool, error) {
	row := s.DB.QueryRow(ctx, `
		INSERT INTO sms_messages
			(conversation_id, provider_sid, direction, from_number, to_number, message_content, raw_webhook_data)
		VALUES ($1, $2, 'inbound', $3, $4, $5, $6)
		RETURNING `+messageCols+`
	`, in.ConversationID, in.ProviderSID, nullIfEmpty(in.FromNumber),
		nullIfEmpty(in.ToNumber), nullIfEmpty(in.Body), in.RawPayload)
	m, err := scanMessage(row)
	if err != nil {
		if isUniqueViolation(err) {
			return store.Message{}, false, nil
		}
		return store.Message{}, false, err
	}
	return m, true, nil
}

func (s *Store) InsertOutboundPending(ctx context.Context, conversationID int64, to, body string) (store.Message, error) {
	row := s.DB.QueryRow(ctx, `
		INSERT INTO sms_messages (conversation_id, direction, to_number, message_content, delivery_status)
		VALUES ($1, 'outbound', $2, $3, 'pending')
		RETURNING `+messageCols+`
	`, conversationID, to, body)
	return scanMessage(row)
}

// SetSendResult records the provider-issued sid and moves the message out of
// pending after a successful send.
func (s *Store) SetSendResult(ctx context.Context, messageID int64, providerSID, status string) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE sms_messages SET provider_sid=$2, delivery_status=$3, updated_at=now() WHERE id=$1
	`, messageID, providerSID, status)
	return err
}

func (s *Store) SetDeliveryStatus(ctx context.Context, messageID int64, status string) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE sms_messages SET delivery_status=$2, updated_at=now() WHERE id=$1
	`, messageID, status)
	return err
}

func (s *Store) ListMessagesByConversation(ctx context.Context, conversationID int64, limit, offset int) ([]store.Message, int, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+messageCols+`
		FROM sms_messages WHERE conversation_id=$1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, conversationID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []store.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := s.DB.QueryRow(ctx, `
		SELECT COUNT(*) FROM sms_messages WHERE conversation_id=$1
	`, conversationID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// AppendStatusEvent appends one history event; the (message_id, event_hash)
// unique pair makes replays no-ops. Returns whether a new row was written.
func (s *Store) AppendStatusEvent(ctx context.Context, in store.StatusEventInsert) (bool, error) {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO sms_message_status_events (message_id, event_status, error_code, event_hash, raw_webhook_data)
		VALUES ($1, $2, $3, $4, $5)
	`, in.MessageID, in.Status, nullIfEmpty(in.ErrorCode), in.EventHash, in.RawPayload)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) CountStatusEvents(ctx context.Context, messageID int64) (int, error) {
	var n int
	err := s.DB.QueryRow(ctx, `
		SELECT COUNT(*) FROM sms_message_status_events WHERE message_id=$1
	`, messageID).Scan(&n)
	return n, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
