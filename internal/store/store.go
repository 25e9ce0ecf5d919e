// Package store provides storage backends for botpharma.
//
// It includes an in-memory store used by tests and as a fallback, plus
// persistent SQLite and PostgreSQL implementations sharing one interface.
package store

import (
	"strings"
	"time"

	"github.com/FranckSowax/botpharma/internal/models"
)

// Store is the persistence contract consumed by the pipeline and the
// automation engines. All multi-statement invariants (one open conversation
// per user, one survey per order, guard windows for coupons) are enforced
// inside the implementations, not by callers.
type Store interface {
	// Users
	GetUserByPhone(phone string) (*models.User, error)
	UpsertUser(phone, name string) (*models.User, error)
	UpdateUserProfile(userID string, profile models.ProfileData) error
	ListCustomers() ([]models.User, error)
	GetUser(userID string) (*models.User, error)
	// DeleteUserData cascades a GDPR erasure across every table owning rows
	// for the user.
	DeleteUserData(userID string) error

	// Conversations
	GetOpenConversation(userID string) (*models.Conversation, error)
	CreateConversation(userID string) (*models.Conversation, error)
	UpdateConversation(conv *models.Conversation) error

	// Messages
	AddMessage(msg *models.Message) error
	ListRecentMessages(conversationID string, limit int) ([]models.Message, error)

	// Orders
	AddOrder(order *models.Order) error
	UpdateOrderStatus(orderID string, status models.OrderStatus) error
	ListCompletedOrdersSince(since time.Time) ([]models.Order, error)
	ListCompletedOrdersBetween(start, end time.Time) ([]models.Order, error)
	LatestOrder(userID string) (*models.Order, error)
	HasOrderAfter(userID string, after time.Time) (bool, error)
	CountCompletedOrders(userID string) (int, error)
	SumCompletedOrderAmounts(userID string) (int64, error)

	// Campaign messages
	CreateCampaignMessage(m *models.CampaignMessage) error
	ListDueCampaignMessages(ct models.CampaignType, now time.Time) ([]models.CampaignMessage, error)
	MarkCampaignMessageSent(id string, at time.Time) error
	CountCampaignMessages(userID string, ct models.CampaignType) (int, error)
	CampaignExistsForOrder(ct models.CampaignType, orderID string) (bool, error)
	ListSentCampaignMessages(ct models.CampaignType) ([]models.CampaignMessage, error)
	CountCampaignsByStatus(ct models.CampaignType, status models.CampaignStatus) (int, error)

	// Satisfaction surveys
	// CreateSurveyIfAbsent inserts at most one survey per order; the bool
	// reports whether a new row was created.
	CreateSurveyIfAbsent(userID, orderID string) (*models.SatisfactionSurvey, bool, error)
	LatestPendingSurvey(userID string) (*models.SatisfactionSurvey, error)
	SubmitSurvey(surveyID string, rating int, feedback string, at time.Time) error

	// Loyalty coupons
	CreateCoupon(c *models.LoyaltyCoupon) error
	CouponExistsSince(userID string, since time.Time) (bool, error)
	ListCoupons(userID string) ([]models.LoyaltyCoupon, error)
	CouponStats() (models.CouponStats, error)

	// Advisor alerts
	CreateAlert(a *models.AdvisorAlert) error
	ListPendingAlerts() ([]models.AdvisorAlert, error)

	// Products and recommendations
	ListActiveProducts(limit int) ([]models.Product, error)
	AddRecommendation(conversationID, productID string, score float64) error

	// Consent
	AddConsentLog(userID string, given bool) error

	Close() error
}

// Opts holds configuration options for store constructors.
type Opts struct {
	DSN string
}

// Option defines a configuration option for a store.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL-style DSNs and "sqlite"
// for file paths.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
