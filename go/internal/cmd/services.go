package main

import (
	"fmt"

	"github.com/mcdev12/caseroll/go/clients/asset_store_client"
	"github.com/mcdev12/caseroll/go/clients/case_api_client"
	"github.com/mcdev12/caseroll/go/internal/asset"
	"github.com/mcdev12/caseroll/go/internal/events"
	"github.com/mcdev12/caseroll/go/internal/gateway"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Assets    *asset.Cache
	Cases     *case_api_client.CaseApiClient
	Publisher events.Publisher
	Gateway   *gateway.Service
}

func setupServices(cfg Config, tuning *Tuning) (*Services, error) {
	// Asset store → decoder → shared cache
	store := asset_store_client.NewAssetStoreClient(cfg.AssetBaseURL, cfg.AssetFetchTimeout)
	cache, err := asset.NewCache(store, asset.DefaultDecoder(), cfg.AssetCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create asset cache: %w", err)
	}

	cases := case_api_client.NewCaseApiClient(cfg.CaseAPIURL)

	publisher, err := setupPublisher(cfg)
	if err != nil {
		return nil, err
	}

	sessionCfg, err := tuning.sessionConfig()
	if err != nil {
		_ = publisher.Close()
		return nil, fmt.Errorf("invalid tuning: %w", err)
	}
	sessionCfg.Resolver = cache
	sessionCfg.Cases = cases
	sessionCfg.Publisher = publisher

	gatewayCfg := gateway.DefaultConfig()
	gatewayCfg.Session = sessionCfg

	return &Services{
		Assets:    cache,
		Cases:     cases,
		Publisher: publisher,
		Gateway:   gateway.NewService(gatewayCfg),
	}, nil
}

// setupPublisher uses JetStream when NATS_URL is set and logs events
// otherwise.
func setupPublisher(cfg Config) (events.Publisher, error) {
	if cfg.NATSURL == "" {
		log.Info().Msg("NATS_URL not set, spin events are only logged")
		return events.LogPublisher{}, nil
	}

	jsCfg := events.DefaultJetStreamConfig()
	jsCfg.URL = cfg.NATSURL
	publisher, err := events.NewJetStreamPublisher(jsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create event publisher: %w", err)
	}
	return publisher, nil
}
