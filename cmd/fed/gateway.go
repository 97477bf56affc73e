package main

import (
	"context"
	"net/http"
	"sync"

	log "github.com/jensneuse/abstractlogger"

	"github.com/wundergraph/graphql-go-tools/execution/engine"
	"github.com/wundergraph/graphql-go-tools/execution/graphql"
	"github.com/wundergraph/graphql-go-tools/v2/pkg/engine/resolve"

	"github.com/it512/fed/view"
)

type DataSourceObserver interface {
	UpdateDataSources(subgraphsConfigs []engine.SubgraphConfiguration)
}

type DataSourceSubject interface {
	Register(observer DataSourceObserver)
}

type ViewFactory interface {
	Make(schema *graphql.Schema, engine *engine.ExecutionEngine) (*view.GraphQLView, error)
}

type ViewFactoryFn func(schema *graphql.Schema, engine *engine.ExecutionEngine) (*view.GraphQLView, error)

func (f ViewFactoryFn) Make(schema *graphql.Schema, engine *engine.ExecutionEngine) (*view.GraphQLView, error) {
	return f(schema, engine)
}

// Gateway serves the view built from the latest set of subgraphs.
type Gateway struct {
	viewFactory    ViewFactory
	httpClient     *http.Client
	logger         log.Logger
	maxConcurrency int

	view *view.GraphQLView
	mu   sync.Mutex

	readyCh   chan struct{}
	readyOnce sync.Once
	engineCtx context.Context
}

func NewGateway(ctx context.Context, viewFactory ViewFactory, httpClient *http.Client, logger log.Logger, maxConcurrency int) *Gateway {
	return &Gateway{
		engineCtx:      ctx,
		viewFactory:    viewFactory,
		httpClient:     httpClient,
		logger:         logger,
		maxConcurrency: maxConcurrency,

		readyCh: make(chan struct{}),
	}
}

func (g *Gateway) Handle(ctx context.Context, r *view.Request) *view.Response {
	g.mu.Lock()
	current := g.view
	g.mu.Unlock()

	if current == nil {
		return view.ErrorResponse(http.StatusServiceUnavailable, "ServiceUnavailableError", "The gateway is not ready")
	}

	return current.Handle(ctx, r)
}

// Ready blocks until the first engine has been built or ctx is done.
func (g *Gateway) Ready(ctx context.Context) error {
	select {
	case <-g.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) UpdateDataSources(subgraphsConfigs []engine.SubgraphConfiguration) {
	engineConfigFactory := engine.NewFederationEngineConfigFactory(g.engineCtx, subgraphsConfigs, engine.WithFederationHttpClient(g.httpClient))

	engineConfig, err := engineConfigFactory.BuildEngineConfiguration()
	if err != nil {
		g.logger.Error("build engine config", log.Error(err))
		return
	}

	executionEngine, err := engine.NewExecutionEngine(g.engineCtx, g.logger, engineConfig, resolve.ResolverOptions{MaxConcurrency: g.maxConcurrency})
	if err != nil {
		g.logger.Error("create engine", log.Error(err))
		return
	}

	v, err := g.viewFactory.Make(engineConfig.Schema(), executionEngine)
	if err != nil {
		g.logger.Error("create view", log.Error(err))
		return
	}

	g.mu.Lock()
	g.view = v
	g.mu.Unlock()

	g.logger.Info("engine updated", log.Int("subgraphs", len(subgraphsConfigs)))

	g.readyOnce.Do(func() { close(g.readyCh) })
}
