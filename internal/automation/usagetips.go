package automation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/FranckSowax/botpharma/internal/messaging"
	"github.com/FranckSowax/botpharma/internal/models"
	"github.com/FranckSowax/botpharma/internal/store"
)

// defaultTipCategory is used when an order cannot be tied to a product
// category.
const defaultTipCategory = "default"

// usageTips holds three rotating tip variants per product category. The
// variant index cycles with each tip sent to the same customer, so repeat
// buyers never receive the same advice twice in a row.
var usageTips = map[string][]string{
	"vitamines": {
		"💊 Conseil d'utilisation : prenez vos vitamines le matin pendant le petit-déjeuner, l'absorption est meilleure avec un repas.",
		"💊 Le saviez-vous ? Une cure de vitamines est plus efficace sur 2 à 3 mois sans interruption. Pensez à renouveler !",
		"💊 Astuce : évitez le thé ou le café dans l'heure qui suit vos vitamines, les tanins réduisent l'absorption du fer.",
	},
	"dermocosmetique": {
		"🧴 Conseil d'utilisation : appliquez votre soin sur une peau propre et légèrement humide pour une meilleure pénétration.",
		"🧴 Astuce : introduisez un nouveau soin progressivement, une application tous les deux jours la première semaine.",
		"🧴 Le saviez-vous ? Un soin visage se conserve en général 6 à 12 mois après ouverture. Vérifiez le symbole pot ouvert !",
	},
	"solaire": {
		"☀️ Conseil d'utilisation : renouvelez votre protection solaire toutes les 2 heures, et après chaque baignade.",
		"☀️ Astuce : appliquez votre crème solaire 20 minutes avant l'exposition pour une protection optimale.",
		"☀️ Le saviez-vous ? Un tube de crème solaire entamé se conserve une saison. Au-delà, la protection diminue.",
	},
	"complements": {
		"🌿 Conseil d'utilisation : prenez vos compléments alimentaires à heure fixe pour ne pas oublier, idéalement au repas.",
		"🌿 Astuce : faites une pause d'une semaine entre deux cures pour laisser l'organisme se réguler.",
		"🌿 Le saviez-vous ? Conservez vos compléments à l'abri de la chaleur et de l'humidité, pas dans la salle de bain !",
	},
	"hygiene": {
		"🫧 Conseil d'utilisation : un gel nettoyant doux s'utilise matin et soir, inutile de frotter, massez délicatement.",
		"🫧 Astuce : changez votre brosse à dents ou votre éponge konjac tous les 3 mois.",
		"🫧 Le saviez-vous ? Se laver les mains 30 secondes élimine la grande majorité des germes, comptez jusqu'à 30 !",
	},
	defaultTipCategory: {
		"✨ Merci pour votre achat ! Pour en profiter au mieux, lisez la notice et respectez les quantités conseillées.",
		"✨ Astuce : conservez vos produits de parapharmacie à l'abri de la chaleur directe pour préserver leur efficacité.",
		"✨ Besoin d'un conseil personnalisé sur votre produit ? Écrivez-moi, je suis là pour ça ! 😊",
	},
}

// TipFor returns the tip variant for a category, cycling through variants by
// index. Unknown categories fall back to the generic tips.
func TipFor(category string, index int) string {
	tips, ok := usageTips[normalizeCategory(category)]
	if !ok {
		tips = usageTips[defaultTipCategory]
	}
	if index < 0 {
		index = 0
	}
	return tips[index%len(tips)]
}

func normalizeCategory(category string) string {
	c := strings.ToLower(strings.TrimSpace(category))
	switch c {
	case "dermocosmétique", "dermo-cosmétique", "soin", "soins":
		return "dermocosmetique"
	case "compléments", "complément", "complement":
		return "complements"
	case "hygiène":
		return "hygiene"
	}
	return c
}

// CategoryResolver maps an order to a product category for tip selection.
// Orders carry no line items, so deployments wire their own resolver; without
// one every tip uses the generic category.
type CategoryResolver func(order models.Order) string

// UsageTipsEngine sends usage advice a few days after each purchase.
type UsageTipsEngine struct {
	store    store.Store
	msg      messaging.Service
	cfg      UsageTipsConfig
	resolver CategoryResolver
}

// TipsOption configures a UsageTipsEngine.
type TipsOption func(*UsageTipsEngine)

// WithCategoryResolver wires a product category resolver.
func WithCategoryResolver(r CategoryResolver) TipsOption {
	return func(e *UsageTipsEngine) { e.resolver = r }
}

// NewUsageTipsEngine creates a usage tips engine.
func NewUsageTipsEngine(st store.Store, msg messaging.Service, cfg UsageTipsConfig, opts ...TipsOption) *UsageTipsEngine {
	e := &UsageTipsEngine{store: st, msg: msg, cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DetectRecentOrders schedules one tip per order completed exactly DelayDays
// ago, using a one-day sliding band so each daily run picks up yesterday's
// leftovers but never reaches further back.
func (e *UsageTipsEngine) DetectRecentOrders(now time.Time) (int, error) {
	start := now.AddDate(0, 0, -(e.cfg.DelayDays + 1))
	end := now.AddDate(0, 0, -e.cfg.DelayDays)
	orders, err := e.store.ListCompletedOrdersBetween(start, end)
	if err != nil {
		return 0, fmt.Errorf("failed to list recent orders: %w", err)
	}

	scheduled := 0
	for _, order := range orders {
		exists, err := e.store.CampaignExistsForOrder(models.CampaignUsageTips, order.ID)
		if err != nil {
			slog.Error("UsageTipsEngine: failed to check existing campaign", "error", err, "order_id", order.ID)
			continue
		}
		if exists {
			continue
		}

		category := defaultTipCategory
		if e.resolver != nil {
			if c := e.resolver(order); c != "" {
				category = c
			}
		}
		// Cycle variants by how many tips this customer already received,
		// and stop once every variant went out.
		prior, err := e.store.CountCampaignMessages(order.UserID, models.CampaignUsageTips)
		if err != nil {
			slog.Error("UsageTipsEngine: failed to count prior tips", "error", err, "user_id", order.UserID)
			continue
		}
		if e.cfg.MaxTipsPerProduct > 0 && prior >= e.cfg.MaxTipsPerProduct {
			continue
		}

		cm := &models.CampaignMessage{
			UserID:       order.UserID,
			Type:         models.CampaignUsageTips,
			Content:      TipFor(category, prior),
			ScheduledFor: now,
			Metadata:     models.CampaignMetadata{OrderID: order.ID, TipIndex: prior},
		}
		if err := e.store.CreateCampaignMessage(cm); err != nil {
			slog.Error("UsageTipsEngine: failed to schedule tip", "error", err, "order_id", order.ID)
			continue
		}
		scheduled++
	}
	return scheduled, nil
}

// Deliver sends every tip that is due.
func (e *UsageTipsEngine) Deliver(ctx context.Context, now time.Time) (int, error) {
	return deliverDue(ctx, e.store, e.msg, models.CampaignUsageTips, now)
}

// TipsStats summarizes the tips program.
type TipsStats struct {
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
}

// Stats reports pending and sent tip counts.
func (e *UsageTipsEngine) Stats() (TipsStats, error) {
	pending, err := e.store.CountCampaignsByStatus(models.CampaignUsageTips, models.CampaignPending)
	if err != nil {
		return TipsStats{}, fmt.Errorf("failed to count pending tips: %w", err)
	}
	sent, err := e.store.CountCampaignsByStatus(models.CampaignUsageTips, models.CampaignSent)
	if err != nil {
		return TipsStats{}, fmt.Errorf("failed to count sent tips: %w", err)
	}
	return TipsStats{Pending: pending, Sent: sent}, nil
}
