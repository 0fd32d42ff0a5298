package service

import (
	"searchlens.app/analyzer/common/llm"
	"searchlens.app/analyzer/core/config"
	"searchlens.app/analyzer/internal/events"
	"searchlens.app/analyzer/internal/metadata"
	"searchlens.app/analyzer/internal/store"
)

type Services struct {
	stores   *store.Stores
	txRunner TxRunner
	bus      events.Publisher
	fetcher  *metadata.Fetcher
	cfg      *config.Config
}

func NewServices(
	stores *store.Stores,
	txRunner TxRunner,
	bus events.Publisher,
	fetcher *metadata.Fetcher,
	cfg *config.Config,
) *Services {
	return &Services{
		stores:   stores,
		txRunner: txRunner,
		bus:      bus,
		fetcher:  fetcher,
		cfg:      cfg,
	}
}

func (s *Services) Auth() AuthService {
	return NewAuthService(s.stores.Users(), s.stores.Sessions(), s.cfg.WorkOS)
}

func (s *Services) Workspaces() WorkspaceService {
	return NewWorkspaceService(
		s.stores.Workspaces(),
		s.stores.Invitations(),
		s.stores.Settings(),
		s.bus,
		s.cfg.DashboardURL,
	)
}

func (s *Services) Snapshots() SnapshotService {
	return NewSnapshotService(s.stores.Snapshots(), s.stores.Settings(), s.txRunner, s.bus)
}

func (s *Services) Insights() InsightService {
	return NewInsightService(
		s.Snapshots(),
		s.stores.Snapshots(),
		s.stores.Settings(),
		func(apiKey string) (llm.Client, error) {
			return llm.New(llm.Config{
				APIKey:  apiKey,
				BaseURL: s.cfg.AI.BaseURL,
				Model:   s.cfg.AI.Model,
			})
		},
		s.cfg.AI,
		s.bus,
	)
}

func (s *Services) Experiments() ExperimentService {
	return NewExperimentService(s.stores.Experiments(), s.Snapshots(), s.fetcher, s.bus)
}

func (s *Services) Enrichment() EnrichmentService {
	return NewEnrichmentService(s.Snapshots(), s.stores.Snapshots(), s.fetcher, s.bus)
}

func (s *Services) Knowledge() KnowledgeService {
	return NewKnowledgeService(s.stores.Knowledge(), s.Insights(), s.bus)
}

func (s *Services) Shares() ShareService {
	return NewShareService(s.stores.Shares(), s.stores.Snapshots(), s.cfg.DashboardURL)
}

func (s *Services) Settings() SettingsService {
	return NewSettingsService(s.stores.Settings(), s.bus)
}
