package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awslambda "github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	log "github.com/jensneuse/abstractlogger"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wundergraph/graphql-go-tools/execution/engine"
	"github.com/wundergraph/graphql-go-tools/execution/graphql"

	"github.com/it512/fed/apigateway"
	gatewayHttp "github.com/it512/fed/http"
	"github.com/it512/fed/view"
)

const (
	eventsREST  = "rest"
	eventsHTTP  = "http"
	eventsProxy = "proxy"
)

func newLogger(debug bool) (log.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	level := log.InfoLevel
	if debug {
		zapConfig = zap.NewDevelopmentConfig()
		level = log.DebugLevel
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	return log.NewZapLogger(logger, level), nil
}

// startGateway polls the subgraphs in the background and returns once the first engine is ready.
func startGateway(ctx context.Context, config Config, logger log.Logger) (*Gateway, error) {
	httpClient := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &requestIDTransport{
			wrapped: http.DefaultTransport,
		},
	}

	datasourceWatcher := NewDatasourcePoller(httpClient, DatasourcePollerConfig{
		Services:        config.Services,
		PollingInterval: config.PollingInterval,
	}, logger)

	viewConfig := view.Config{
		Explorer:           config.Explorer,
		AllowQueriesViaGET: config.AllowQueriesViaGET,
		Endpoint:           config.Endpoint,
	}

	var viewFactory ViewFactoryFn = func(schema *graphql.Schema, engine *engine.ExecutionEngine) (*view.GraphQLView, error) {
		return view.New(schema, view.NewEngineExecutor(engine, config.EnableART), viewConfig, view.WithLogger(logger))
	}

	gateway := NewGateway(ctx, viewFactory, httpClient, logger, config.MaxConcurrency)

	datasourceWatcher.Register(gateway)
	go datasourceWatcher.Run(ctx)

	readyCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if err := gateway.Ready(readyCtx); err != nil {
		return nil, errors.Wrap(err, "wait for the first engine")
	}

	return gateway, nil
}

func newHTTPHandler(gateway *Gateway, config Config, logger log.Logger) http.Handler {
	gqlHandler := gatewayHttp.NewGraphqlHTTPHandler(gateway, logger)
	gqlHandler.SetMaxBodyBytes(config.MaxBodyBytes)

	mux := http.NewServeMux()
	mux.Handle(config.Endpoint, gqlHandler)
	return mux
}

func setup(v *viper.Viper) (Config, log.Logger, error) {
	config, err := loadConfig(v)
	if err != nil {
		return Config{}, nil, err
	}

	logger, err := newLogger(config.Debug)
	if err != nil {
		return Config{}, nil, errors.Wrap(err, "create logger")
	}

	return config, logger, nil
}

func newServeCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the GraphQL endpoint over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, logger, err := setup(v)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			gateway, err := startGateway(ctx, config, logger)
			if err != nil {
				return err
			}

			server := &http.Server{
				Addr:              config.Addr,
				Handler:           newHTTPHandler(gateway, config, logger),
				ReadHeaderTimeout: 10 * time.Second,
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = server.Shutdown(shutdownCtx)
			}()

			logger.Info("listening", log.String("addr", config.Addr), log.String("endpoint", config.Endpoint))

			if err = server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "listen")
			}
			return nil
		},
	}
}

func newLambdaCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Serve the GraphQL endpoint as an AWS Lambda function behind API Gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, logger, err := setup(v)
			if err != nil {
				return err
			}

			gateway, err := startGateway(cmd.Context(), config, logger)
			if err != nil {
				return err
			}

			switch config.Events {
			case eventsHTTP:
				awslambda.Start(apigateway.HTTPAPIHandler(gateway))
			case eventsProxy:
				awslambda.Start(httpadapter.New(newHTTPHandler(gateway, config, logger)).ProxyWithContext)
			default:
				awslambda.Start(apigateway.ProxyHandler(gateway))
			}
			return nil
		},
	}
}

func newRootCommand() (*cobra.Command, error) {
	v := viper.New()

	root := &cobra.Command{
		Use:           "fed",
		Short:         "GraphQL federation gateway for HTTP servers and AWS Lambda",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	if err := bindFlags(v, root.PersistentFlags()); err != nil {
		return nil, err
	}

	root.AddCommand(newServeCommand(v), newLambdaCommand(v))
	return root, nil
}

func main() {
	root, err := newRootCommand()
	if err != nil {
		os.Exit(1)
	}

	if err = root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
