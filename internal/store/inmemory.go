package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FranckSowax/botpharma/internal/models"
)

// InMemoryStore is a mutex-guarded Store used by tests and as a fallback when
// no database DSN is configured. Guard checks run under the same lock as the
// inserts they protect, so the check-then-insert sequences are atomic here.
type InMemoryStore struct {
	mu              sync.Mutex
	users           map[string]*models.User // by ID
	conversations   []*models.Conversation
	messages        []*models.Message
	orders          []*models.Order
	campaigns       []*models.CampaignMessage
	surveys         []*models.SatisfactionSurvey
	coupons         []*models.LoyaltyCoupon
	alerts          []*models.AdvisorAlert
	products        []*models.Product
	recommendations []recommendationRow
	consentLogs     []consentRow
}

type recommendationRow struct {
	ConversationID string
	ProductID      string
	Score          float64
}

type consentRow struct {
	UserID string
	Given  bool
	At     time.Time
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{users: make(map[string]*models.User)}
}

func (s *InMemoryStore) GetUserByPhone(phone string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.PhoneNumber == phone {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) UpsertUser(phone, name string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, u := range s.users {
		if u.PhoneNumber == phone {
			if name != "" && name != u.Name {
				u.Name = name
				u.UpdatedAt = now
			}
			cp := *u
			return &cp, nil
		}
	}
	u := &models.User{
		ID:          uuid.NewString(),
		PhoneNumber: phone,
		Name:        name,
		Role:        models.RoleCustomer,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (s *InMemoryStore) UpdateUserProfile(userID string, profile models.ProfileData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return models.ErrUserNotFound
	}
	u.Profile = profile
	u.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) ListCustomers() ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for _, u := range s.users {
		if u.Role == models.RoleCustomer {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) GetUser(userID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (s *InMemoryStore) DeleteUserData(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)

	convIDs := make(map[string]bool)
	var convs []*models.Conversation
	for _, c := range s.conversations {
		if c.UserID == userID {
			convIDs[c.ID] = true
			continue
		}
		convs = append(convs, c)
	}
	s.conversations = convs

	var msgs []*models.Message
	for _, m := range s.messages {
		if !convIDs[m.ConversationID] {
			msgs = append(msgs, m)
		}
	}
	s.messages = msgs

	var orders []*models.Order
	for _, o := range s.orders {
		if o.UserID != userID {
			orders = append(orders, o)
		}
	}
	s.orders = orders

	var campaigns []*models.CampaignMessage
	for _, c := range s.campaigns {
		if c.UserID != userID {
			campaigns = append(campaigns, c)
		}
	}
	s.campaigns = campaigns

	var surveys []*models.SatisfactionSurvey
	for _, sv := range s.surveys {
		if sv.UserID != userID {
			surveys = append(surveys, sv)
		}
	}
	s.surveys = surveys

	var coupons []*models.LoyaltyCoupon
	for _, c := range s.coupons {
		if c.UserID != userID {
			coupons = append(coupons, c)
		}
	}
	s.coupons = coupons

	var consents []consentRow
	for _, c := range s.consentLogs {
		if c.UserID != userID {
			consents = append(consents, c)
		}
	}
	s.consentLogs = consents
	return nil
}

func (s *InMemoryStore) GetOpenConversation(userID string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.Conversation
	for _, c := range s.conversations {
		if c.UserID == userID && c.Status == models.ConversationOpen {
			if latest == nil || c.StartedAt.After(latest.StartedAt) {
				latest = c
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (s *InMemoryStore) CreateConversation(userID string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// One open conversation per user: reuse any existing open one.
	var latest *models.Conversation
	for _, c := range s.conversations {
		if c.UserID == userID && c.Status == models.ConversationOpen {
			if latest == nil || c.StartedAt.After(latest.StartedAt) {
				latest = c
			}
		}
	}
	if latest != nil {
		cp := *latest
		return &cp, nil
	}
	now := time.Now()
	c := &models.Conversation{
		ID:           uuid.NewString(),
		UserID:       userID,
		Status:       models.ConversationOpen,
		CurrentState: "greeting",
		StartedAt:    now,
		UpdatedAt:    now,
	}
	s.conversations = append(s.conversations, c)
	cp := *c
	return &cp, nil
}

func (s *InMemoryStore) UpdateConversation(conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conversations {
		if c.ID == conv.ID {
			c.Status = conv.Status
			c.CurrentState = conv.CurrentState
			c.Data = conv.Data
			c.UpdatedAt = time.Now()
			return nil
		}
	}
	return models.ErrConversationClosed
}

func (s *InMemoryStore) AddMessage(msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	cp := *msg
	s.messages = append(s.messages, &cp)
	return nil
}

func (s *InMemoryStore) ListRecentMessages(conversationID string, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []models.Message
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			all = append(all, *m)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (s *InMemoryStore) AddOrder(order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
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
	cp := *order
	s.orders = append(s.orders, &cp)
	return nil
}

func (s *InMemoryStore) UpdateOrderStatus(orderID string, status models.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ID == orderID {
			o.Status = status
			o.UpdatedAt = time.Now()
			return nil
		}
	}
	return models.ErrOrderNotFound
}

func (s *InMemoryStore) ListCompletedOrdersSince(since time.Time) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.orders {
		if o.Status == models.OrderCompleted && !o.UpdatedAt.Before(since) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListCompletedOrdersBetween(start, end time.Time) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.orders {
		if o.Status == models.OrderCompleted && !o.UpdatedAt.Before(start) && !o.UpdatedAt.After(end) {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *InMemoryStore) LatestOrder(userID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			if latest == nil || o.CreatedAt.After(latest.CreatedAt) {
				latest = o
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (s *InMemoryStore) HasOrderAfter(userID string, after time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.UserID == userID && o.CreatedAt.After(after) {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryStore) CountCompletedOrders(userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, o := range s.orders {
		if o.UserID == userID && o.Status == models.OrderCompleted {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) SumCompletedOrderAmounts(userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum int64
	for _, o := range s.orders {
		if o.UserID == userID && o.Status == models.OrderCompleted {
			sum += o.TotalAmount
		}
	}
	return sum, nil
}

func (s *InMemoryStore) CreateCampaignMessage(m *models.CampaignMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.Status == "" {
		m.Status = models.CampaignPending
	}
	cp := *m
	s.campaigns = append(s.campaigns, &cp)
	return nil
}

func (s *InMemoryStore) ListDueCampaignMessages(ct models.CampaignType, now time.Time) ([]models.CampaignMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CampaignMessage
	for _, c := range s.campaigns {
		if c.Type == ct && c.Status == models.CampaignPending && !c.ScheduledFor.After(now) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *InMemoryStore) MarkCampaignMessageSent(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.campaigns {
		if c.ID == id {
			c.Status = models.CampaignSent
			sentAt := at
			c.SentAt = &sentAt
			return nil
		}
	}
	return nil
}

func (s *InMemoryStore) CountCampaignMessages(userID string, ct models.CampaignType) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, c := range s.campaigns {
		if c.UserID == userID && c.Type == ct {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) CampaignExistsForOrder(ct models.CampaignType, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.campaigns {
		if c.Type == ct && c.Metadata.OrderID == orderID {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryStore) ListSentCampaignMessages(ct models.CampaignType) ([]models.CampaignMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CampaignMessage
	for _, c := range s.campaigns {
		if c.Type == ct && c.Status == models.CampaignSent {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *InMemoryStore) CountCampaignsByStatus(ct models.CampaignType, status models.CampaignStatus) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, c := range s.campaigns {
		if c.Type == ct && c.Status == status {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) CreateSurveyIfAbsent(userID, orderID string) (*models.SatisfactionSurvey, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sv := range s.surveys {
		if sv.OrderID == orderID {
			cp := *sv
			return &cp, false, nil
		}
	}
	sv := &models.SatisfactionSurvey{
		ID:        uuid.NewString(),
		UserID:    userID,
		OrderID:   orderID,
		CreatedAt: time.Now(),
	}
	s.surveys = append(s.surveys, sv)
	cp := *sv
	return &cp, true, nil
}

func (s *InMemoryStore) LatestPendingSurvey(userID string) (*models.SatisfactionSurvey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.SatisfactionSurvey
	for _, sv := range s.surveys {
		if sv.UserID == userID && sv.SubmittedAt == nil {
			if latest == nil || sv.CreatedAt.After(latest.CreatedAt) {
				latest = sv
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (s *InMemoryStore) SubmitSurvey(surveyID string, rating int, feedback string, at time.Time) error {
	if rating < 1 || rating > 5 {
		return models.ErrInvalidRating
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sv := range s.surveys {
		if sv.ID == surveyID {
			r := rating
			submitted := at
			sv.Rating = &r
			sv.Feedback = feedback
			sv.SubmittedAt = &submitted
			return nil
		}
	}
	return models.ErrNoPendingSurvey
}

func (s *InMemoryStore) CreateCoupon(c *models.LoyaltyCoupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	cp := *c
	s.coupons = append(s.coupons, &cp)
	return nil
}

func (s *InMemoryStore) CouponExistsSince(userID string, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.coupons {
		if c.UserID == userID && !c.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryStore) ListCoupons(userID string) ([]models.LoyaltyCoupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var coupons []models.LoyaltyCoupon
	for _, c := range s.coupons {
		if c.UserID == userID {
			coupons = append(coupons, *c)
		}
	}
	return coupons, nil
}

func (s *InMemoryStore) CouponStats() (models.CouponStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := models.CouponStats{}
	today := time.Now()
	for _, c := range s.coupons {
		stats.Total++
		if c.Used {
			stats.Used++
		} else if !c.ValidTo.Before(today) {
			stats.Active++
		}
	}
	if stats.Total > 0 {
		stats.RedemptionRate = float64(stats.Used) / float64(stats.Total) * 100
	}
	return stats, nil
}

func (s *InMemoryStore) CreateAlert(a *models.AdvisorAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if a.Status == "" {
		a.Status = models.AlertPending
	}
	cp := *a
	s.alerts = append(s.alerts, &cp)
	return nil
}

func (s *InMemoryStore) ListPendingAlerts() ([]models.AdvisorAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AdvisorAlert
	for _, a := range s.alerts {
		if a.Status == models.AlertPending {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListActiveProducts(limit int) ([]models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Product
	for _, p := range s.products {
		if p.Active {
			out = append(out, *p)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// AddProduct seeds a catalog entry (tests and bootstrap).
func (s *InMemoryStore) AddProduct(p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	cp := *p
	s.products = append(s.products, &cp)
	return nil
}

func (s *InMemoryStore) AddRecommendation(conversationID, productID string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recommendations = append(s.recommendations, recommendationRow{conversationID, productID, score})
	return nil
}

func (s *InMemoryStore) AddConsentLog(userID string, given bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consentLogs = append(s.consentLogs, consentRow{userID, given, time.Now()})
	return nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
