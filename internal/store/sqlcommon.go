package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FranckSowax/botpharma/internal/models"
)

// dbStore implements Store on database/sql. The same queries serve SQLite and
// PostgreSQL; placeholders are written in '?' form and rebound to $n for
// Postgres, and the few statements whose syntax genuinely differs branch on
// the driver.
type dbStore struct {
	db     *sql.DB
	driver string
}

func (s *dbStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}

func (s *dbStore) exec(query string, args ...interface{}) (sql.Result, error) {
	return s.db.Exec(s.rebind(query), args...)
}

func (s *dbStore) query(query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.Query(s.rebind(query), args...)
}

func (s *dbStore) queryRow(query string, args ...interface{}) *sql.Row {
	return s.db.QueryRow(s.rebind(query), args...)
}

func marshalJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("store: JSON marshal failed", "error", err)
		return nil
	}
	return data
}

const userColumns = `id, phone_number, name, role, profile_data, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*models.User, error) {
	var u models.User
	var name, profileJSON sql.NullString
	if err := row.Scan(&u.ID, &u.PhoneNumber, &name, &u.Role, &profileJSON, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Name = name.String
	if profileJSON.Valid && profileJSON.String != "" {
		if err := json.Unmarshal([]byte(profileJSON.String), &u.Profile); err != nil {
			slog.Warn("store: unreadable profile_data, ignoring", "user_id", u.ID, "error", err)
		}
	}
	return &u, nil
}

func (s *dbStore) GetUserByPhone(phone string) (*models.User, error) {
	u, err := scanUser(s.queryRow(`SELECT `+userColumns+` FROM users WHERE phone_number = ?`, phone))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user by phone: %w", err)
	}
	return u, nil
}

func (s *dbStore) UpsertUser(phone, name string) (*models.User, error) {
	if phone == "" {
		return nil, models.ErrEmptyPhoneNumber
	}
	now := time.Now()
	_, err := s.exec(`
		INSERT INTO users (id, phone_number, name, role, profile_data, created_at, updated_at)
		VALUES (?, ?, ?, 'customer', NULL, ?, ?)
		ON CONFLICT (phone_number) DO UPDATE SET
			name = COALESCE(NULLIF(excluded.name, ''), users.name),
			updated_at = excluded.updated_at`,
		uuid.NewString(), phone, name, now, now)
	if err != nil {
		slog.Error("store.UpsertUser failed", "error", err, "phone", phone)
		return nil, fmt.Errorf("failed to upsert user %s: %w", phone, err)
	}
	return s.GetUserByPhone(phone)
}

func (s *dbStore) UpdateUserProfile(userID string, profile models.ProfileData) error {
	_, err := s.exec(`UPDATE users SET profile_data = ?, updated_at = ? WHERE id = ?`,
		marshalJSON(profile), time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to update profile for %s: %w", userID, err)
	}
	return nil
}

func (s *dbStore) ListCustomers() ([]models.User, error) {
	rows, err := s.query(`SELECT ` + userColumns + ` FROM users WHERE role = 'customer' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()
	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer row: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *dbStore) GetUser(userID string) (*models.User, error) {
	u, err := scanUser(s.queryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user %s: %w", userID, err)
	}
	return u, nil
}

func (s *dbStore) DeleteUserData(userID string) error {
	// Foreign keys cascade the erasure across all dependent tables.
	res, err := s.exec(`DELETE FROM users WHERE id = ?`, userID)
	if err != nil {
		slog.Error("store.DeleteUserData failed", "error", err, "user_id", userID)
		return fmt.Errorf("failed to delete user data for %s: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Info("store.DeleteUserData: user data erased", "user_id", userID)
	}
	return nil
}

const conversationColumns = `id, user_id, status, current_state, conversation_data, started_at, updated_at`

func scanConversation(row interface{ Scan(...interface{}) error }) (*models.Conversation, error) {
	var c models.Conversation
	var userID, dataJSON sql.NullString
	if err := row.Scan(&c.ID, &userID, &c.Status, &c.CurrentState, &dataJSON, &c.StartedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.UserID = userID.String
	if dataJSON.Valid && dataJSON.String != "" {
		if err := json.Unmarshal([]byte(dataJSON.String), &c.Data); err != nil {
			slog.Warn("store: unreadable conversation_data, ignoring", "conversation_id", c.ID, "error", err)
		}
	}
	return &c, nil
}

func (s *dbStore) GetOpenConversation(userID string) (*models.Conversation, error) {
	c, err := scanConversation(s.queryRow(`
		SELECT `+conversationColumns+` FROM conversations
		WHERE user_id = ? AND status = 'open'
		ORDER BY started_at DESC LIMIT 1`, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query open conversation for %s: %w", userID, err)
	}
	return c, nil
}

func (s *dbStore) CreateConversation(userID string) (*models.Conversation, error) {
	now := time.Now()
	// The partial unique index keeps this to one open conversation per user
	// even under concurrent webhook deliveries.
	insert := `
		INSERT INTO conversations (id, user_id, status, current_state, conversation_data, started_at, updated_at)
		VALUES (?, ?, 'open', 'greeting', NULL, ?, ?)
		ON CONFLICT (user_id) WHERE status = 'open' DO NOTHING`
	if s.driver != "postgres" {
		insert = `
		INSERT INTO conversations (id, user_id, status, current_state, conversation_data, started_at, updated_at)
		VALUES (?, ?, 'open', 'greeting', NULL, ?, ?)
		ON CONFLICT DO NOTHING`
	}
	if _, err := s.exec(insert, uuid.NewString(), userID, now, now); err != nil {
		slog.Error("store.CreateConversation failed", "error", err, "user_id", userID)
		return nil, fmt.Errorf("failed to create conversation for %s: %w", userID, err)
	}
	return s.GetOpenConversation(userID)
}

func (s *dbStore) UpdateConversation(conv *models.Conversation) error {
	_, err := s.exec(`
		UPDATE conversations SET status = ?, current_state = ?, conversation_data = ?, updated_at = ?
		WHERE id = ?`,
		conv.Status, conv.CurrentState, marshalJSON(conv.Data), time.Now(), conv.ID)
	if err != nil {
		return fmt.Errorf("failed to update conversation %s: %w", conv.ID, err)
	}
	return nil
}

func (s *dbStore) AddMessage(msg *models.Message) error {
	if msg.Content == "" {
		return models.ErrEmptyMessageBody
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	_, err := s.exec(`
		INSERT INTO messages (id, conversation_id, sender, content, metadata, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Sender, msg.Content, marshalJSON(msg.Metadata), msg.Timestamp)
	if err != nil {
		slog.Error("store.AddMessage failed", "error", err, "conversation_id", msg.ConversationID)
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (s *dbStore) ListRecentMessages(conversationID string, limit int) ([]models.Message, error) {
	rows, err := s.query(`
		SELECT id, conversation_id, sender, content, metadata, timestamp FROM (
			SELECT id, conversation_id, sender, content, metadata, timestamp
			FROM messages WHERE conversation_id = ?
			ORDER BY timestamp DESC LIMIT ?
		) recent ORDER BY timestamp ASC`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()
	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		var metadataJSON sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.Content, &metadataJSON, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			_ = json.Unmarshal([]byte(metadataJSON.String), &m.Metadata)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

const orderColumns = `id, conversation_id, user_id, status, total_amount, external_ref, created_at, updated_at`

func scanOrder(row interface{ Scan(...interface{}) error }) (*models.Order, error) {
	var o models.Order
	var convID, externalRef sql.NullString
	if err := row.Scan(&o.ID, &convID, &o.UserID, &o.Status, &o.TotalAmount, &externalRef, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.ConversationID = convID.String
	o.ExternalRef = externalRef.String
	return &o, nil
}

func (s *dbStore) AddOrder(order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	now := time.Now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = now
	}
	_, err := s.exec(`
		INSERT INTO orders (id, conversation_id, user_id, status, total_amount, external_ref, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, nilIfEmpty(order.ConversationID), order.UserID, order.Status,
		order.TotalAmount, nilIfEmpty(order.ExternalRef), order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (s *dbStore) UpdateOrderStatus(orderID string, status models.OrderStatus) error {
	res, err := s.exec(`UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now(), orderID)
	if err != nil {
		return fmt.Errorf("failed to update order %s: %w", orderID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrOrderNotFound
	}
	return nil
}

func (s *dbStore) ListCompletedOrdersSince(since time.Time) ([]models.Order, error) {
	return s.listOrders(`
		SELECT `+orderColumns+` FROM orders
		WHERE status = 'completed' AND updated_at >= ? ORDER BY updated_at`, since)
}

func (s *dbStore) ListCompletedOrdersBetween(start, end time.Time) ([]models.Order, error) {
	return s.listOrders(`
		SELECT `+orderColumns+` FROM orders
		WHERE status = 'completed' AND updated_at >= ? AND updated_at <= ? ORDER BY updated_at`, start, end)
}

func (s *dbStore) listOrders(query string, args ...interface{}) ([]models.Order, error) {
	rows, err := s.query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()
	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (s *dbStore) LatestOrder(userID string) (*models.Order, error) {
	o, err := scanOrder(s.queryRow(`
		SELECT `+orderColumns+` FROM orders WHERE user_id = ?
		ORDER BY created_at DESC LIMIT 1`, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest order for %s: %w", userID, err)
	}
	return o, nil
}

func (s *dbStore) HasOrderAfter(userID string, after time.Time) (bool, error) {
	var count int
	err := s.queryRow(`SELECT COUNT(*) FROM orders WHERE user_id = ? AND created_at > ?`, userID, after).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count orders after %s: %w", after, err)
	}
	return count > 0, nil
}

func (s *dbStore) CountCompletedOrders(userID string) (int, error) {
	var count int
	err := s.queryRow(`SELECT COUNT(*) FROM orders WHERE user_id = ? AND status = 'completed'`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count completed orders: %w", err)
	}
	return count, nil
}

func (s *dbStore) SumCompletedOrderAmounts(userID string) (int64, error) {
	var sum sql.NullInt64
	err := s.queryRow(`SELECT SUM(total_amount) FROM orders WHERE user_id = ? AND status = 'completed'`, userID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum completed orders: %w", err)
	}
	return sum.Int64, nil
}
