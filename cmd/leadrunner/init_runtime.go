package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"alfred-ai/internal/adapter/carrier"
	"alfred-ai/internal/adapter/ingress"
	"alfred-ai/internal/adapter/inbound"
	"alfred-ai/internal/adapter/inbound/imapscanner"
	"alfred-ai/internal/adapter/resilience"
	"alfred-ai/internal/adapter/store"
	"alfred-ai/internal/domain"
	"alfred-ai/internal/infra/config"
	"alfred-ai/internal/usecase/channelagent"
	"alfred-ai/internal/usecase/engagement"
	"alfred-ai/internal/usecase/eventbus"
	"alfred-ai/internal/usecase/handover"
	"alfred-ai/internal/usecase/jobqueue"
	"alfred-ai/internal/usecase/modelrouter"
	"alfred-ai/internal/usecase/overlord"
	"alfred-ai/internal/usecase/touchscheduler"
)

// stores bundles every per-aggregate store opened against the shared DB, one
// field per domain.*Store interface (mirrors the teacher's RuntimeComponents
// grouping convention, generalized from channels/gateway/cron to our own
// component set).
type stores struct {
	leads     *store.LeadStore
	convs     *store.ConversationStore
	campaigns *store.CampaignStore
	templates *store.TemplateStore
	agents    *store.EngagementAgentStore
	decisions *store.DecisionStore
	comms     *store.CommunicationStore
	handovers *store.HandoverStore
	orphans   *store.OrphanReplyStore
	breakers  *store.BreakerStateStore
}

// runtime bundles every long-lived component initRuntime wires together.
type runtime struct {
	db          *store.DB
	bus         *eventbus.Bus
	engine      *engagement.Engine
	evaluator   *handover.Evaluator
	queue       *jobqueue.Queue
	scheduler   *touchscheduler.Scheduler
	ingress     *ingress.Server
	inbound     *inbound.Server
	imapScan    *imapscanner.Scanner
	unsubscribe func()
}

// initRuntime wires every component named in cfg: stores, model router,
// channel agents, the engagement engine, job queue, touch scheduler,
// handover evaluator, and the two HTTP surfaces (ingress, inbound webhooks)
// plus the IMAP scanner. Returns the assembled runtime and a cleanup
// function that reverses the wiring in shutdown order.
func initRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtime, func(context.Context) error, error) {
	db, err := store.Open(cfg.Store.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	st := &stores{
		leads:     store.NewLeadStore(db),
		convs:     store.NewConversationStore(db),
		campaigns: store.NewCampaignStore(db),
		templates: store.NewTemplateStore(db),
		agents:    store.NewEngagementAgentStore(db),
		decisions: store.NewDecisionStore(db),
		comms:     store.NewCommunicationStore(db),
		handovers: store.NewHandoverStore(db),
		orphans:   store.NewOrphanReplyStore(db),
		breakers:  store.NewBreakerStateStore(db),
	}

	models := []string{
		cfg.ModelRouter.SimpleModel,
		cfg.ModelRouter.MediumModel,
		cfg.ModelRouter.ComplexModel,
		cfg.ModelRouter.FallbackModel,
	}
	providers, err := modelrouter.NewProviderRegistry(cfg.ModelRouter, models, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("model router providers: %w", err)
	}

	breakerRegistry := resilience.NewBreakerRegistry(resilience.BreakerConfig{
		MaxFailures: cfg.Breaker.MaxFailures,
		Timeout:     cfg.Breaker.Timeout,
		Interval:    cfg.Breaker.Interval,
	}, logger, st.breakers)

	agentOverride := make(map[domain.AgentKind]string, len(cfg.ModelRouter.AgentModelOverride))
	for k, v := range cfg.ModelRouter.AgentModelOverride {
		agentOverride[domain.AgentKind(k)] = v
	}
	router := modelrouter.New(domain.RouterConfig{
		Tiers: map[domain.ModelTier]domain.TierModels{
			domain.TierSimple:  {Primary: cfg.ModelRouter.SimpleModel, Fallback: cfg.ModelRouter.FallbackModel},
			domain.TierMedium:  {Primary: cfg.ModelRouter.MediumModel, Fallback: cfg.ModelRouter.FallbackModel},
			domain.TierComplex: {Primary: cfg.ModelRouter.ComplexModel, Fallback: cfg.ModelRouter.FallbackModel},
		},
		AgentModelOverride: agentOverride,
		Timeout:            cfg.ModelRouter.TimeoutMS,
	}, providers, breakerRegistry, logger)

	agentProvider := channelagent.NewProvider(st.agents, st.templates, router)
	overlordAgent := overlord.NewWithLogger(router, logger)
	handoverAgents := handoverAgentProvider{agentProvider}

	bus := eventbus.New(logger)

	emailCarrier := carrier.NewEmailCarrier(carrier.EmailConfig{
		APIURL:    cfg.Carrier.EmailAPIURL,
		APIKey:    cfg.Carrier.EmailAPIKey,
		Domain:    cfg.Carrier.EmailDomain,
		FromEmail: cfg.Carrier.FromEmail,
	})
	smsCarrier := carrier.NewSMSCarrier(carrier.SMSConfig{
		AccountSID: cfg.Carrier.SMSAccountSID,
		AuthToken:  cfg.Carrier.SMSAuthToken,
		FromNumber: cfg.Carrier.OutboundPhone,
	})
	dispatchCarrier := carrier.NewMultiplexer(map[domain.LeadChannel]carrier.Sender{
		domain.ChannelEmail: emailCarrier,
		domain.ChannelSMS:   smsCarrier,
	})

	var queue *jobqueue.Queue
	jobs := jobEnqueuerFunc(func(ctx context.Context, job domain.Job) error { return queue.Enqueue(ctx, job) })

	scheduler := touchscheduler.New(st.campaigns, st.comms, jobs, logger)

	engine := engagement.New(engagement.Deps{
		Leads:     st.leads,
		Convs:     st.convs,
		Campaigns: st.campaigns,
		Decisions: st.decisions,
		Comms:     st.comms,
		Orphans:   st.orphans,
		Overlord:  overlordAgent,
		Agents:    agentProvider,
		Jobs:      jobs,
		Touches:   scheduler,
		Events:    bus,
		Logger:    logger,
	})

	queue = jobqueue.New(jobqueue.Config{
		Workers:            cfg.Queue.MaxConcurrent,
		DeadLetterCapacity: 256,
	}, func(ctx context.Context, job domain.Job) error {
		return engine.ProcessDispatchJob(ctx, job, dispatchCarrier)
	}, bus, logger)

	senders := map[domain.DestinationKind]handover.Sender{
		domain.DestinationEmail: carrier.NewHandoverEmailSender(carrier.EmailConfig{
			APIURL:    cfg.Carrier.EmailAPIURL,
			APIKey:    cfg.Carrier.EmailAPIKey,
			Domain:    cfg.Carrier.EmailDomain,
			FromEmail: cfg.Carrier.FromEmail,
		}),
		domain.DestinationWebhook: handover.NewWebhookSender(10 * time.Second),
		domain.DestinationCRM:     carrier.NewCRMSender(carrier.CRMConfig{APIKey: cfg.Carrier.CRMAPIKey}),
	}
	if cfg.Carrier.SlackBotToken != "" {
		senders[domain.DestinationSlack] = handover.NewSlackSender(cfg.Carrier.SlackBotToken)
	}

	evaluator := handover.New(handover.Deps{
		Leads:              st.leads,
		Convs:              st.convs,
		Campaigns:          st.campaigns,
		Handovers:          st.handovers,
		Agents:             handoverAgents,
		Router:             router,
		Marker:             engine,
		Breaker:            breakerRegistry,
		Senders:            senders,
		Events:             bus,
		Logger:             logger,
		DefaultCRMFieldMap: cfg.Handover.DefaultCRMFieldMap,
	})
	unsubscribe := evaluator.Subscribe()

	inboundServer := inbound.NewServer(inbound.Config{
		Addr:               cfg.Server.WebhookAddr,
		EmailWebhookSecret: cfg.Handover.WebhookSecret,
		SMSAuthToken:       cfg.Carrier.SMSAuthToken,
	}, engine, st.comms, evaluator, logger)

	ingressServer := ingress.NewServer(ingress.Config{
		Addr:                    cfg.Server.Addr,
		MarketplaceAPIKey:       cfg.Marketplace.APIKey,
		MarketplaceValidAPIKeys: cfg.Marketplace.ValidAPIKeys,
		StatusAPIKeys:           cfg.Server.StatusAPIKeys,
	}, engine, st.leads, logger)

	var scanner *imapscanner.Scanner
	if cfg.IMAP.Host != "" {
		rules := make([]imapscanner.Rule, 0, len(cfg.IMAP.Rules))
		for _, r := range cfg.IMAP.Rules {
			rules = append(rules, imapscanner.Rule{
				Name:             r.Name,
				SubjectContains:  r.SubjectContains,
				FromContains:     r.FromContains,
				BodyContains:     r.BodyContains,
				CreateLead:       r.CreateLead,
				AssignCampaignID: r.AssignCampaignID,
				SetPriority:      r.SetPriority,
				AddTags:          r.AddTags,
			})
		}
		imapCfg := imapscanner.Config{
			Host:         cfg.IMAP.Host,
			Port:         cfg.IMAP.Port,
			User:         cfg.IMAP.User,
			Password:     cfg.IMAP.Password,
			Mailbox:      cfg.IMAP.Mailbox,
			PollInterval: cfg.IMAP.PollInterval,
			UseTLS:       cfg.IMAP.UseTLS,
			Rules:        rules,
		}
		scanner = imapscanner.New(imapCfg, imapscanner.NewDialer(imapCfg), st.leads, engine, logger)
	}

	rt := &runtime{
		db:          db,
		bus:         bus,
		engine:      engine,
		evaluator:   evaluator,
		queue:       queue,
		scheduler:   scheduler,
		ingress:     ingressServer,
		inbound:     inboundServer,
		imapScan:    scanner,
		unsubscribe: unsubscribe,
	}

	cleanup := func(ctx context.Context) error {
		rt.unsubscribe()
		if rt.imapScan != nil {
			rt.imapScan.Stop()
		}
		if err := rt.ingress.Stop(ctx); err != nil {
			logger.Error("ingress shutdown error", "err", err)
		}
		if err := rt.inbound.Stop(ctx); err != nil {
			logger.Error("inbound shutdown error", "err", err)
		}
		rt.scheduler.Stop()
		rt.queue.Stop()
		rt.bus.Close()
		return rt.db.Close()
	}

	return rt, cleanup, nil
}

// handoverAgentProvider narrows channelagent.Provider's engagement.ChannelAgent
// return to handover.ChannelAgent (EvaluateSignals only), since handover.Deps
// and engagement.Deps each declare their own local AgentProvider/ChannelAgent
// interfaces and Go requires the exact return type to satisfy either one.
type handoverAgentProvider struct {
	provider *channelagent.Provider
}

func (h handoverAgentProvider) ChannelAgent(ch domain.LeadChannel) (handover.ChannelAgent, error) {
	return h.provider.ChannelAgent(ch)
}

// jobEnqueuerFunc adapts a plain function to engagement.JobEnqueuer /
// touchscheduler's job-enqueuing collaborator.
type jobEnqueuerFunc func(ctx context.Context, job domain.Job) error

func (f jobEnqueuerFunc) Enqueue(ctx context.Context, job domain.Job) error { return f(ctx, job) }
