package automation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranckSowax/botpharma/internal/messaging"
	"github.com/FranckSowax/botpharma/internal/models"
	"github.com/FranckSowax/botpharma/internal/store"
)

// Report is the outcome of one orchestrator cycle. Errors collects stage
// failures without aborting the cycle: one broken engine never blocks the
// others.
type Report struct {
	StartedAt            time.Time `json:"started_at"`
	SurveysScheduled     int       `json:"surveys_scheduled"`
	SurveysSent          int       `json:"surveys_sent"`
	ReactivationsCreated int       `json:"reactivations_created"`
	ReactivationsSent    int       `json:"reactivations_sent"`
	TipsScheduled        int       `json:"tips_scheduled"`
	TipsSent             int       `json:"tips_sent"`
	LoyaltyRewards       int       `json:"loyalty_rewards"`
	LoyaltySent          int       `json:"loyalty_sent"`
	Errors               []string  `json:"errors,omitempty"`
}

// Stats aggregates counters across the automation engines for the admin API.
type Stats struct {
	Surveys       CampaignCounters   `json:"surveys"`
	Reactivation  ReactivationStats  `json:"reactivation"`
	Tips          TipsStats          `json:"usage_tips"`
	Loyalty       models.CouponStats `json:"loyalty"`
	PendingAlerts int                `json:"pending_alerts"`
}

// CampaignCounters are pending/sent counts for one campaign type.
type CampaignCounters struct {
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
}

// Orchestrator runs the four automation engines as one cycle.
type Orchestrator struct {
	store        store.Store
	survey       *SurveyEngine
	reactivation *ReactivationEngine
	tips         *UsageTipsEngine
	loyalty      *LoyaltyEngine
}

// OrchestratorOpts holds the engine configurations the orchestrator wires.
type OrchestratorOpts struct {
	Survey       SurveyConfig
	Reactivation ReactivationConfig
	Tips         UsageTipsConfig
	TipsOptions  []TipsOption
	Loyalty      LoyaltyConfig
}

// OrchestratorOption defines a configuration option for the orchestrator.
type OrchestratorOption func(*OrchestratorOpts)

// WithSurveyConfig overrides the survey engine settings.
func WithSurveyConfig(cfg SurveyConfig) OrchestratorOption {
	return func(o *OrchestratorOpts) { o.Survey = cfg }
}

// WithReactivationConfig overrides the reactivation engine settings.
func WithReactivationConfig(cfg ReactivationConfig) OrchestratorOption {
	return func(o *OrchestratorOpts) { o.Reactivation = cfg }
}

// WithUsageTipsConfig overrides the usage tips engine settings.
func WithUsageTipsConfig(cfg UsageTipsConfig) OrchestratorOption {
	return func(o *OrchestratorOpts) { o.Tips = cfg }
}

// WithTipCategoryResolver wires a product category resolver into the usage
// tips engine.
func WithTipCategoryResolver(r CategoryResolver) OrchestratorOption {
	return func(o *OrchestratorOpts) { o.TipsOptions = append(o.TipsOptions, WithCategoryResolver(r)) }
}

// WithLoyaltyConfig overrides the loyalty engine settings.
func WithLoyaltyConfig(cfg LoyaltyConfig) OrchestratorOption {
	return func(o *OrchestratorOpts) { o.Loyalty = cfg }
}

// NewOrchestrator wires the four engines over one store and messaging
// service. Every config starts from the production defaults.
func NewOrchestrator(st store.Store, msg messaging.Service, opts ...OrchestratorOption) *Orchestrator {
	cfg := OrchestratorOpts{
		Survey:       DefaultSurveyConfig(),
		Reactivation: DefaultReactivationConfig(),
		Tips:         DefaultUsageTipsConfig(),
		Loyalty:      DefaultLoyaltyConfig(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Orchestrator{
		store:        st,
		survey:       NewSurveyEngine(st, msg, cfg.Survey),
		reactivation: NewReactivationEngine(st, msg, cfg.Reactivation),
		tips:         NewUsageTipsEngine(st, msg, cfg.Tips, cfg.TipsOptions...),
		loyalty:      NewLoyaltyEngine(st, msg, cfg.Loyalty),
	}
}

// Survey exposes the survey engine for webhook rating processing.
func (o *Orchestrator) Survey() *SurveyEngine {
	return o.survey
}

// RunAll executes one full automation cycle: every detection stage, then
// every delivery sweep. Stage failures are recorded and the cycle continues.
func (o *Orchestrator) RunAll(ctx context.Context, now time.Time) Report {
	report := Report{StartedAt: now}
	fail := func(stage string, err error) {
		slog.Error("Orchestrator: stage failed", "stage", stage, "error", err)
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", stage, err))
	}

	var err error
	if report.SurveysScheduled, err = o.survey.DetectDeliveredOrders(now); err != nil {
		fail("survey_detect", err)
	}
	if report.ReactivationsCreated, err = o.reactivation.Run(now); err != nil {
		fail("reactivation_run", err)
	}
	if report.TipsScheduled, err = o.tips.DetectRecentOrders(now); err != nil {
		fail("tips_detect", err)
	}
	if report.LoyaltyRewards, err = o.loyalty.Run(now); err != nil {
		fail("loyalty_run", err)
	}

	if report.SurveysSent, err = o.survey.Deliver(ctx, now); err != nil {
		fail("survey_deliver", err)
	}
	if report.ReactivationsSent, err = o.reactivation.Deliver(ctx, now); err != nil {
		fail("reactivation_deliver", err)
	}
	if report.TipsSent, err = o.tips.Deliver(ctx, now); err != nil {
		fail("tips_deliver", err)
	}
	if report.LoyaltySent, err = o.loyalty.Deliver(ctx, now); err != nil {
		fail("loyalty_deliver", err)
	}

	slog.Info("Orchestrator: cycle complete",
		"surveys_scheduled", report.SurveysScheduled,
		"reactivations_created", report.ReactivationsCreated,
		"tips_scheduled", report.TipsScheduled,
		"loyalty_rewards", report.LoyaltyRewards,
		"errors", len(report.Errors))
	return report
}

// CollectStats gathers the cross-engine counters served by the stats
// endpoint.
func (o *Orchestrator) CollectStats() (Stats, error) {
	var stats Stats
	var err error

	if stats.Surveys.Pending, err = o.store.CountCampaignsByStatus(models.CampaignSurvey, models.CampaignPending); err != nil {
		return stats, fmt.Errorf("failed to count pending surveys: %w", err)
	}
	if stats.Surveys.Sent, err = o.store.CountCampaignsByStatus(models.CampaignSurvey, models.CampaignSent); err != nil {
		return stats, fmt.Errorf("failed to count sent surveys: %w", err)
	}
	if stats.Reactivation, err = o.reactivation.AnalyzeEffectiveness(); err != nil {
		return stats, err
	}
	if stats.Tips, err = o.tips.Stats(); err != nil {
		return stats, err
	}
	if stats.Loyalty, err = o.loyalty.Stats(); err != nil {
		return stats, err
	}
	alerts, err := o.store.ListPendingAlerts()
	if err != nil {
		return stats, fmt.Errorf("failed to list pending alerts: %w", err)
	}
	stats.PendingAlerts = len(alerts)
	return stats, nil
}
