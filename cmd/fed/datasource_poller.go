package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"maps"
	"net/http"
	"strings"
	"sync"
	"time"

	log "github.com/jensneuse/abstractlogger"
	"github.com/pkg/errors"

	"github.com/wundergraph/graphql-go-tools/execution/engine"
)

type ServiceConfig struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
	WS   string `mapstructure:"ws"`
}

type DatasourcePollerConfig struct {
	Services        []ServiceConfig
	PollingInterval time.Duration
}

const ServiceDefinitionQuery = `
	{
		"query": "query __ApolloGetServiceDefinition__ { _service { sdl } }",
		"operationName": "__ApolloGetServiceDefinition__",
		"variables": {}
	}`

type GQLErr []struct {
	Message string `json:"message"`
}

func (g GQLErr) Error() string {
	var builder strings.Builder
	for _, m := range g {
		_ = builder.WriteByte('\t')
		_, _ = builder.WriteString(m.Message)
	}

	return builder.String()
}

func NewDatasourcePoller(httpClient *http.Client, config DatasourcePollerConfig, logger log.Logger) *DatasourcePoller {
	return &DatasourcePoller{
		httpClient: httpClient,
		config:     config,
		logger:     logger,
		sdlMap:     make(map[string]string),
	}
}

// DatasourcePoller fetches the SDL of every subgraph and tells its observers
// whenever the set of SDLs changes.
type DatasourcePoller struct {
	httpClient *http.Client
	logger     log.Logger

	config DatasourcePollerConfig
	sdlMap map[string]string

	observers []DataSourceObserver
}

func (d *DatasourcePoller) Register(observer DataSourceObserver) {
	d.observers = append(d.observers, observer)
}

func (d *DatasourcePoller) Run(ctx context.Context) {
	d.updateSDLs(ctx)

	if d.config.PollingInterval == 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(d.config.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.updateSDLs(ctx)
		}
	}
}

type serviceSDL struct {
	name string
	sdl  string
}

func (d *DatasourcePoller) updateSDLs(ctx context.Context) {
	sdlMap := make(map[string]string)

	var wg sync.WaitGroup
	resultCh := make(chan serviceSDL)

	for _, serviceConf := range d.config.Services {
		wg.Add(1)
		go func() {
			defer wg.Done()

			sdl, err := d.fetchServiceSDL(ctx, serviceConf.URL)
			if err != nil {
				d.logger.Error("fetch service sdl",
					log.String("service", serviceConf.Name),
					log.Error(err),
				)
				return
			}

			select {
			case <-ctx.Done():
			case resultCh <- serviceSDL{name: serviceConf.Name, sdl: sdl}:
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	for result := range resultCh {
		sdlMap[result.name] = result.sdl
	}

	if len(sdlMap) == 0 {
		d.logger.Error("no subgraph sdl available, keeping the current engine")
		return
	}

	if maps.Equal(d.sdlMap, sdlMap) {
		d.logger.Debug("subgraph sdl unchanged")
		return
	}

	d.sdlMap = sdlMap
	d.updateObservers()
}

func (d *DatasourcePoller) updateObservers() {
	subgraphs := d.subgraphConfigs()

	for i := range d.observers {
		d.observers[i].UpdateDataSources(subgraphs)
	}
}

func (d *DatasourcePoller) subgraphConfigs() []engine.SubgraphConfiguration {
	subgraphs := make([]engine.SubgraphConfiguration, 0, len(d.config.Services))

	for _, serviceConfig := range d.config.Services {
		sdl, exists := d.sdlMap[serviceConfig.Name]
		if !exists {
			continue
		}

		subgraph := engine.SubgraphConfiguration{
			Name: serviceConfig.Name,
			URL:  serviceConfig.URL,
			SDL:  sdl,
		}
		if serviceConfig.WS != "" {
			subgraph.SubscriptionUrl = serviceConfig.WS
			subgraph.SubscriptionProtocol = engine.SubscriptionProtocolWS
		}

		subgraphs = append(subgraphs, subgraph)
	}

	return subgraphs
}

func (d *DatasourcePoller) fetchServiceSDL(ctx context.Context, serviceURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serviceURL, strings.NewReader(ServiceDefinitionQuery))
	if err != nil {
		return "", errors.Wrap(err, "create request")
	}
	req.Header.Add("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("unexpected status %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			Service struct {
				SDL string `json:"sdl"`
			} `json:"_service"`
		} `json:"data"`
		Errors GQLErr `json:"errors,omitempty"`
	}

	bs, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "read bytes")
	}

	if err = json.NewDecoder(bytes.NewReader(bs)).Decode(&result); err != nil {
		return "", errors.Wrap(err, "decode response")
	}

	if result.Errors != nil {
		return "", errors.Wrap(result.Errors, "response error")
	}

	return result.Data.Service.SDL, nil
}
