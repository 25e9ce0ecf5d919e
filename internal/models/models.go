// Package models defines the core data structures for botpharma.
//
// It includes the persisted entities (users, conversations, messages, orders,
// campaign messages, surveys, coupons, alerts) and the enumerations shared
// across modules.
package models

import (
	"errors"
	"time"
)

// UserRole identifies the kind of account behind a phone number.
type UserRole string

const (
	RoleCustomer UserRole = "customer"
	RoleAdmin    UserRole = "admin"
	RoleSupport  UserRole = "support"
	RoleEditor   UserRole = "editor"
)

// ConversationStatus tracks the lifecycle of a conversation.
type ConversationStatus string

const (
	ConversationOpen      ConversationStatus = "open"
	ConversationClosed    ConversationStatus = "closed"
	ConversationEscalated ConversationStatus = "escalated"
)

// MessageSender identifies who authored a message.
type MessageSender string

const (
	SenderUser      MessageSender = "user"
	SenderAssistant MessageSender = "assistant"
	SenderHuman     MessageSender = "human"
)

// OrderStatus tracks the lifecycle of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// CampaignType identifies which automation engine created a campaign message.
type CampaignType string

const (
	CampaignSurvey       CampaignType = "survey"
	CampaignReactivation CampaignType = "reactivation"
	CampaignUsageTips    CampaignType = "usage_tips"
	CampaignLoyalty      CampaignType = "loyalty"
)

// CampaignStatus tracks delivery of a campaign message.
type CampaignStatus string

const (
	CampaignPending CampaignStatus = "pending"
	CampaignSent    CampaignStatus = "sent"
)

// AlertStatus tracks the lifecycle of an advisor alert.
type AlertStatus string

const (
	AlertPending  AlertStatus = "pending"
	AlertAssigned AlertStatus = "assigned"
	AlertResolved AlertStatus = "resolved"
)

// Validation sentinels shared by the store and API layers.
var (
	ErrEmptyPhoneNumber   = errors.New("phone number cannot be empty")
	ErrEmptyMessageBody   = errors.New("message body cannot be empty")
	ErrInvalidRating      = errors.New("rating must be between 1 and 5")
	ErrUserNotFound       = errors.New("user not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrNoPendingSurvey    = errors.New("no pending survey for user")
	ErrConversationClosed = errors.New("conversation is not open")
)

// ProfileData is the typed profile scratch space stored per user.
type ProfileData struct {
	Bio           bool     `json:"bio,omitempty"`
	Vegan         bool     `json:"vegan,omitempty"`
	FragranceFree bool     `json:"fragrance_free,omitempty"`
	Birthday      string   `json:"birthday,omitempty"` // YYYY-MM-DD
	Preferences   []string `json:"preferences,omitempty"`
}

// User is a customer or staff identity keyed by normalized phone number.
type User struct {
	ID          string      `json:"id"`
	PhoneNumber string      `json:"phone_number"`
	Name        string      `json:"name,omitempty"`
	Role        UserRole    `json:"role"`
	Profile     ProfileData `json:"profile_data"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// ConversationData is the typed in-flight slot-filling scratch space.
type ConversationData struct {
	ConsentGiven        bool              `json:"consent_given,omitempty"`
	SelectedOption      string            `json:"selected_option,omitempty"`
	Category            string            `json:"category,omitempty"`
	Brand               string            `json:"brand,omitempty"`
	Preferences         []string          `json:"preferences,omitempty"`
	Answers             map[string]string `json:"answers,omitempty"`
	RecommendedProducts []string          `json:"recommended_products,omitempty"`
}

// Merge overlays non-zero fields of patch onto d.
func (d *ConversationData) Merge(patch ConversationData) {
	if patch.ConsentGiven {
		d.ConsentGiven = true
	}
	if patch.SelectedOption != "" {
		d.SelectedOption = patch.SelectedOption
	}
	if patch.Category != "" {
		d.Category = patch.Category
	}
	if patch.Brand != "" {
		d.Brand = patch.Brand
	}
	if len(patch.Preferences) > 0 {
		d.Preferences = patch.Preferences
	}
	if len(patch.Answers) > 0 {
		if d.Answers == nil {
			d.Answers = make(map[string]string, len(patch.Answers))
		}
		for k, v := range patch.Answers {
			d.Answers[k] = v
		}
	}
	if len(patch.RecommendedProducts) > 0 {
		d.RecommendedProducts = patch.RecommendedProducts
	}
}

// Conversation is one chat session between a user and the assistant.
type Conversation struct {
	ID           string             `json:"id"`
	UserID       string             `json:"user_id,omitempty"`
	Status       ConversationStatus `json:"status"`
	CurrentState string             `json:"current_state"`
	Data         ConversationData   `json:"conversation_data"`
	StartedAt    time.Time          `json:"started_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// Message is one append-only entry in a conversation's history.
type Message struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id"`
	Sender         MessageSender     `json:"sender"`
	Content        string            `json:"content"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
}

// Order is a purchase linked to a conversation; its completion is the trigger
// source for all post-purchase automations.
type Order struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id,omitempty"`
	UserID         string      `json:"user_id"`
	Status         OrderStatus `json:"status"`
	TotalAmount    int64       `json:"total_amount"` // FCFA
	ExternalRef    string      `json:"external_ref,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// CampaignMetadata is the typed metadata attached to a campaign message.
type CampaignMetadata struct {
	SurveyID   string `json:"survey_id,omitempty"`
	OrderID    string `json:"order_id,omitempty"`
	ProductID  string `json:"product_id,omitempty"`
	PromoCode  string `json:"promo_code,omitempty"`
	Discount   int    `json:"discount,omitempty"`
	Reason     string `json:"reason,omitempty"`
	TipIndex   int    `json:"tip_index,omitempty"`
	IsThankYou bool   `json:"is_thank_you,omitempty"`
}

// CampaignMessage is a deferred outbound notification created by an
// automation engine and delivered by a separate sweep once due.
type CampaignMessage struct {
	ID           string           `json:"id"`
	UserID       string           `json:"user_id"`
	Type         CampaignType     `json:"type"`
	Content      string           `json:"content"`
	Status       CampaignStatus   `json:"status"`
	ScheduledFor time.Time        `json:"scheduled_for"`
	SentAt       *time.Time       `json:"sent_at,omitempty"`
	Metadata     CampaignMetadata `json:"metadata"`
	CreatedAt    time.Time        `json:"created_at"`
}

// SatisfactionSurvey is the one-per-order post-delivery survey.
type SatisfactionSurvey struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	OrderID     string     `json:"order_id"`
	Rating      *int       `json:"rating,omitempty"`
	Feedback    string     `json:"feedback,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// LoyaltyCoupon is a discount code issued by a loyalty or reactivation trigger.
type LoyaltyCoupon struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Code        string     `json:"code"`
	DiscountPct int        `json:"discount_pct"`
	ValidFrom   time.Time  `json:"valid_from"`
	ValidTo     time.Time  `json:"valid_to"`
	Used        bool       `json:"used"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// AdvisorAlert asks a human advisor to pick up a conversation. ConversationID
// is empty for survey-triggered alerts.
type AdvisorAlert struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Reason         string      `json:"reason"`
	Status         AlertStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Product is a catalog entry surfaced in recommendations.
type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
	PriceCFA    int64  `json:"price_cfa"`
	ImageURL    string `json:"image_url,omitempty"`
	Active      bool   `json:"active"`
}

// CouponStats are derived loyalty program counters.
type CouponStats struct {
	Total          int     `json:"total"`
	Used           int     `json:"used"`
	Active         int     `json:"active"`
	RedemptionRate float64 `json:"redemption_rate"`
}
