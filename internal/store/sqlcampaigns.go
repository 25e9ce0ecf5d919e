package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/FranckSowax/botpharma/internal/models"
)

func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

const campaignColumns = `id, user_id, type, content, status, scheduled_for, sent_at, metadata, created_at`

func scanCampaignMessage(row interface{ Scan(...interface{}) error }) (*models.CampaignMessage, error) {
	var m models.CampaignMessage
	var sentAt sql.NullTime
	var metadataJSON sql.NullString
	if err := row.Scan(&m.ID, &m.UserID, &m.Type, &m.Content, &m.Status, &m.ScheduledFor, &sentAt, &metadataJSON, &m.CreatedAt); err != nil {
		return nil, err
	}
	if sentAt.Valid {
		m.SentAt = &sentAt.Time
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &m.Metadata); err != nil {
			slog.Warn("store: unreadable campaign metadata, ignoring", "campaign_id", m.ID, "error", err)
		}
	}
	return &m, nil
}

func (s *dbStore) CreateCampaignMessage(m *models.CampaignMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = models.CampaignPending
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	_, err := s.exec(`
		INSERT INTO campaign_messages (id, user_id, type, content, status, scheduled_for, sent_at, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
		m.ID, m.UserID, m.Type, m.Content, m.Status, m.ScheduledFor, marshalJSON(m.Metadata), m.CreatedAt)
	if err != nil {
		slog.Error("store.CreateCampaignMessage failed", "error", err, "type", m.Type, "user_id", m.UserID)
		return fmt.Errorf("failed to insert campaign message: %w", err)
	}
	return nil
}

func (s *dbStore) ListDueCampaignMessages(ct models.CampaignType, now time.Time) ([]models.CampaignMessage, error) {
	return s.listCampaigns(`
		SELECT `+campaignColumns+` FROM campaign_messages
		WHERE type = ? AND status = 'pending' AND scheduled_for <= ?
		ORDER BY scheduled_for`, ct, now)
}

func (s *dbStore) ListSentCampaignMessages(ct models.CampaignType) ([]models.CampaignMessage, error) {
	return s.listCampaigns(`
		SELECT `+campaignColumns+` FROM campaign_messages
		WHERE type = ? AND status = 'sent' ORDER BY sent_at`, ct)
}

func (s *dbStore) listCampaigns(query string, args ...interface{}) ([]models.CampaignMessage, error) {
	rows, err := s.query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaign messages: %w", err)
	}
	defer rows.Close()
	var msgs []models.CampaignMessage
	for rows.Next() {
		m, err := scanCampaignMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign message row: %w", err)
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

func (s *dbStore) MarkCampaignMessageSent(id string, at time.Time) error {
	_, err := s.exec(`UPDATE campaign_messages SET status = 'sent', sent_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark campaign message %s sent: %w", id, err)
	}
	return nil
}

func (s *dbStore) CountCampaignMessages(userID string, ct models.CampaignType) (int, error) {
	var count int
	err := s.queryRow(`SELECT COUNT(*) FROM campaign_messages WHERE user_id = ? AND type = ?`, userID, ct).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count campaign messages: %w", err)
	}
	return count, nil
}

func (s *dbStore) CampaignExistsForOrder(ct models.CampaignType, orderID string) (bool, error) {
	// Metadata is a JSON column; match on the serialized order_id key, which
	// both SQLite and Postgres can do with plain LIKE on the text form.
	var count int
	err := s.queryRow(`
		SELECT COUNT(*) FROM campaign_messages
		WHERE type = ? AND metadata LIKE ?`, ct, `%"order_id":"`+orderID+`"%`).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check campaign for order %s: %w", orderID, err)
	}
	return count > 0, nil
}

func (s *dbStore) CountCampaignsByStatus(ct models.CampaignType, status models.CampaignStatus) (int, error) {
	var count int
	err := s.queryRow(`SELECT COUNT(*) FROM campaign_messages WHERE type = ? AND status = ?`, ct, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count campaigns by status: %w", err)
	}
	return count, nil
}

const surveyColumns = `id, user_id, order_id, rating, feedback, submitted_at, created_at`

func scanSurvey(row interface{ Scan(...interface{}) error }) (*models.SatisfactionSurvey, error) {
	var sv models.SatisfactionSurvey
	var rating sql.NullInt64
	var feedback sql.NullString
	var submittedAt sql.NullTime
	if err := row.Scan(&sv.ID, &sv.UserID, &sv.OrderID, &rating, &feedback, &submittedAt, &sv.CreatedAt); err != nil {
		return nil, err
	}
	if rating.Valid {
		r := int(rating.Int64)
		sv.Rating = &r
	}
	sv.Feedback = feedback.String
	if submittedAt.Valid {
		sv.SubmittedAt = &submittedAt.Time
	}
	return &sv, nil
}

func (s *dbStore) CreateSurveyIfAbsent(userID, orderID string) (*models.SatisfactionSurvey, bool, error) {
	res, err := s.exec(`
		INSERT INTO satisfaction_surveys (id, user_id, order_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (order_id) DO NOTHING`,
		uuid.NewString(), userID, orderID, time.Now())
	if err != nil {
		slog.Error("store.CreateSurveyIfAbsent failed", "error", err, "order_id", orderID)
		return nil, false, fmt.Errorf("failed to create survey for order %s: %w", orderID, err)
	}
	inserted, _ := res.RowsAffected()
	sv, err := scanSurvey(s.queryRow(`SELECT `+surveyColumns+` FROM satisfaction_surveys WHERE order_id = ?`, orderID))
	if err != nil {
		return nil, false, fmt.Errorf("failed to load survey for order %s: %w", orderID, err)
	}
	return sv, inserted > 0, nil
}

func (s *dbStore) LatestPendingSurvey(userID string) (*models.SatisfactionSurvey, error) {
	sv, err := scanSurvey(s.queryRow(`
		SELECT `+surveyColumns+` FROM satisfaction_surveys
		WHERE user_id = ? AND submitted_at IS NULL
		ORDER BY created_at DESC LIMIT 1`, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query pending survey for %s: %w", userID, err)
	}
	return sv, nil
}

func (s *dbStore) SubmitSurvey(surveyID string, rating int, feedback string, at time.Time) error {
	if rating < 1 || rating > 5 {
		return models.ErrInvalidRating
	}
	res, err := s.exec(`
		UPDATE satisfaction_surveys SET rating = ?, feedback = ?, submitted_at = ?
		WHERE id = ? AND submitted_at IS NULL`,
		rating, feedback, at, surveyID)
	if err != nil {
		return fmt.Errorf("failed to submit survey %s: %w", surveyID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNoPendingSurvey
	}
	return nil
}

func (s *dbStore) CreateCoupon(c *models.LoyaltyCoupon) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := s.exec(`
		INSERT INTO loyalty_coupons (id, user_id, code, discount_pct, valid_from, valid_to, used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Code, c.DiscountPct, c.ValidFrom, c.ValidTo, c.Used, c.CreatedAt)
	if err != nil {
		slog.Error("store.CreateCoupon failed", "error", err, "code", c.Code)
		return fmt.Errorf("failed to insert coupon %s: %w", c.Code, err)
	}
	return nil
}

func (s *dbStore) CouponExistsSince(userID string, since time.Time) (bool, error) {
	var count int
	err := s.queryRow(`SELECT COUNT(*) FROM loyalty_coupons WHERE user_id = ? AND created_at >= ?`, userID, since).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check recent coupons for %s: %w", userID, err)
	}
	return count > 0, nil
}

func (s *dbStore) CouponStats() (models.CouponStats, error) {
	var stats models.CouponStats
	err := s.queryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN used THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN NOT used AND valid_to >= ? THEN 1 ELSE 0 END), 0)
		FROM loyalty_coupons`, time.Now()).Scan(&stats.Total, &stats.Used, &stats.Active)
	if err != nil {
		return models.CouponStats{}, fmt.Errorf("failed to query coupon stats: %w", err)
	}
	if stats.Total > 0 {
		stats.RedemptionRate = float64(stats.Used) / float64(stats.Total) * 100
	}
	return stats, nil
}

func (s *dbStore) ListCoupons(userID string) ([]models.LoyaltyCoupon, error) {
	rows, err := s.query(`
		SELECT id, user_id, code, discount_pct, valid_from, valid_to, used, used_at, created_at
		FROM loyalty_coupons WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query coupons for %s: %w", userID, err)
	}
	defer rows.Close()
	var coupons []models.LoyaltyCoupon
	for rows.Next() {
		var c models.LoyaltyCoupon
		var usedAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.UserID, &c.Code, &c.DiscountPct, &c.ValidFrom, &c.ValidTo, &c.Used, &usedAt, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan coupon row: %w", err)
		}
		if usedAt.Valid {
			c.UsedAt = &usedAt.Time
		}
		coupons = append(coupons, c)
	}
	return coupons, rows.Err()
}

func (s *dbStore) CreateAlert(a *models.AdvisorAlert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = models.AlertPending
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := s.exec(`
		INSERT INTO advisor_alerts (id, conversation_id, reason, status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		a.ID, nilIfEmpty(a.ConversationID), a.Reason, a.Status, a.CreatedAt)
	if err != nil {
		slog.Error("store.CreateAlert failed", "error", err, "reason", a.Reason)
		return fmt.Errorf("failed to insert advisor alert: %w", err)
	}
	return nil
}

func (s *dbStore) ListPendingAlerts() ([]models.AdvisorAlert, error) {
	rows, err := s.query(`
		SELECT id, conversation_id, reason, status, created_at FROM advisor_alerts
		WHERE status = 'pending' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending alerts: %w", err)
	}
	defer rows.Close()
	var alerts []models.AdvisorAlert
	for rows.Next() {
		var a models.AdvisorAlert
		var convID sql.NullString
		if err := rows.Scan(&a.ID, &convID, &a.Reason, &a.Status, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		a.ConversationID = convID.String
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (s *dbStore) ListActiveProducts(limit int) ([]models.Product, error) {
	rows, err := s.query(`
		SELECT id, name, category, description, price_cfa, image_url, active FROM products
		WHERE active ORDER BY name LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()
	var products []models.Product
	for rows.Next() {
		var p models.Product
		var category, description, imageURL sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &category, &description, &p.PriceCFA, &imageURL, &p.Active); err != nil {
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		p.Category = category.String
		p.Description = description.String
		p.ImageURL = imageURL.String
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *dbStore) AddRecommendation(conversationID, productID string, score float64) error {
	_, err := s.exec(`
		INSERT INTO recommendations (id, conversation_id, product_id, score, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), conversationID, productID, score, time.Now())
	if err != nil {
		return fmt.Errorf("failed to insert recommendation: %w", err)
	}
	return nil
}

func (s *dbStore) AddConsentLog(userID string, given bool) error {
	_, err := s.exec(`
		INSERT INTO consent_logs (id, user_id, consent_given, created_at)
		VALUES (?, ?, ?, ?)`,
		uuid.NewString(), userID, given, time.Now())
	if err != nil {
		return fmt.Errorf("failed to insert consent log: %w", err)
	}
	return nil
}

func (s *dbStore) Close() error {
	return s.db.Close()
}
