// Command resolverd wires the natural-language-to-API request resolver
// and serves it over gRPC. The protobuf wire contract of the endpoint
// catalog service and the analyze/send-message RPC surface themselves
// are owned outside this repository; this binary wires the core pipeline
// and carries placeholder hooks for the frame decoder and the service
// registration. Neither hook decodes catalog frames or registers the
// analyze/send-message methods on the gRPC server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"google.golang.org/grpc"

	"goa.design/clue/log"

	"github.com/bennekrouf/semantic-api0/internal/catalog"
	"github.com/bennekrouf/semantic-api0/internal/catalog/grpcsource"
	"github.com/bennekrouf/semantic-api0/internal/config"
	"github.com/bennekrouf/semantic-api0/internal/orchestrator"
	"github.com/bennekrouf/semantic-api0/internal/prompts"
	"github.com/bennekrouf/semantic-api0/internal/provider"
	"github.com/bennekrouf/semantic-api0/internal/provider/claude"
	"github.com/bennekrouf/semantic-api0/internal/provider/cohere"
	"github.com/bennekrouf/semantic-api0/internal/provider/deepseek"
	"github.com/bennekrouf/semantic-api0/internal/rpc"
	"github.com/bennekrouf/semantic-api0/internal/store"
	"github.com/bennekrouf/semantic-api0/internal/store/memory"
	storesql "github.com/bennekrouf/semantic-api0/internal/store/sql"
	"github.com/bennekrouf/semantic-api0/internal/workflow"
)

func main() {
	var (
		providerF = flag.String("provider", "claude", "LLM provider to use (cohere|claude|deepseek)")
		portF     = flag.Int("port", 0, "gRPC port (overrides config)")
		dbgF      = flag.Bool("debug", false, "enable debug-level logging")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
	}

	paths := config.PathsFromEnv()
	cfg, err := config.Load(paths.ConfigPath)
	if err != nil {
		log.Fatal(ctx, fmt.Errorf("load config: %w", err))
	}
	promptRegistry, err := prompts.Load(paths.PromptsPath)
	if err != nil {
		log.Fatal(ctx, fmt.Errorf("load prompts: %w", err))
	}

	creds := config.CredentialsFromEnv()
	client, err := buildProvider(provider.Kind(*providerF), creds)
	if err != nil {
		log.Fatal(ctx, fmt.Errorf("build provider %q: %w", *providerF, err))
	}

	progressiveStore, err := buildStore(ctx, creds.DatabaseURL)
	if err != nil {
		log.Fatal(ctx, fmt.Errorf("build progressive store: %w", err))
	}

	catalogAddress := cfg.EndpointClient.DefaultAddress
	catalogClient := catalog.New(grpcsource.New(undecodedCatalogFrames))

	if err := catalogClient.Health(ctx, catalogAddress); err != nil {
		log.Fatal(ctx, fmt.Errorf("catalog %q is not healthy at startup: %w", catalogAddress, err))
	}

	orch, err := orchestrator.New(catalogClient, catalogAddress, client, cfg.ModelFor("workflow"), promptRegistry, progressiveStore, orchestrator.Config{
		RetryAttempts:     cfg.Analysis.RetryAttempts,
		FallbackToGeneral: cfg.Analysis.FallbackToGeneral,
		StepRetries:       stepRetries(cfg),
	})
	if err != nil {
		log.Fatal(ctx, fmt.Errorf("build orchestrator: %w", err))
	}
	facade := rpc.New(orch)

	port := cfg.Server.Port
	if *portF != 0 {
		port = *portF
	}
	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Address, port))
	if err != nil {
		log.Fatal(ctx, fmt.Errorf("listen on %s:%d: %w", cfg.Server.Address, port, err))
	}

	server := grpc.NewServer()
	registerFacade(ctx, server, facade)

	errc := make(chan error, 1)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info(ctx, log.KV{K: "msg", V: "resolverd listening"}, log.KV{K: "addr", V: listener.Addr().String()})
		if err := server.Serve(listener); err != nil {
			errc <- err
		}
	}()

	log.Info(ctx, log.KV{K: "msg", V: fmt.Sprintf("exiting (%v)", <-errc)})
	server.GracefulStop()
	wg.Wait()
	log.Info(ctx, log.KV{K: "msg", V: "exited"})
}

// registerFacade does not bind facade's AnalyzeSentence/SendMessage
// methods to server: the gRPC service descriptor is produced from a
// .proto this repository does not own. It only logs that the facade is
// ready; server exposes no analyze/send-message methods.
func registerFacade(ctx context.Context, server *grpc.Server, facade *rpc.AnalyzeService) {
	_ = server
	_ = facade
	log.Info(ctx, log.KV{K: "msg", V: "analyze/send_message facade ready, awaiting generated service registration"})
}

func buildProvider(kind provider.Kind, creds config.Credentials) (provider.Client, error) {
	gateway := provider.NewGateway(provider.Credentials{
		ClaudeAPIKey:   creds.ClaudeAPIKey,
		DeepSeekAPIKey: creds.DeepSeekAPIKey,
		CohereAPIKey:   creds.CohereAPIKey,
	})
	gateway.Register(provider.Claude, func(c provider.Credentials) (provider.Client, error) {
		return claude.NewFromAPIKey(c.ClaudeAPIKey)
	})
	gateway.Register(provider.DeepSeek, func(c provider.Credentials) (provider.Client, error) {
		return deepseek.NewFromAPIKey(c.DeepSeekAPIKey)
	})
	gateway.Register(provider.Cohere, func(c provider.Credentials) (provider.Client, error) {
		return cohere.New(c.CohereAPIKey)
	})
	return gateway.Select(kind)
}

// stepRetries converts the YAML steps section to the retry policy shape
// orchestrator.Config expects.
func stepRetries(cfg *config.Config) map[string]workflow.RetryPolicy {
	out := make(map[string]workflow.RetryPolicy, len(cfg.Steps))
	for name, retry := range cfg.Steps {
		out[name] = workflow.RetryPolicy{MaxAttempts: retry.MaxAttempts, Delay: retry.Delay()}
	}
	return out
}

func buildStore(ctx context.Context, databaseURL string) (store.Store, error) {
	if databaseURL == "" {
		return memory.New(), nil
	}
	return storesql.Open(ctx, databaseURL)
}

// undecodedCatalogFrames is a placeholder FrameDecoder: the catalog
// service's wire schema belongs to that service's own .proto, generated
// outside this repository. An operator deploying resolverd supplies the
// real decoder built against that generated client.
func undecodedCatalogFrames(_ context.Context, _ *grpc.ClientConn, _ string) ([]catalog.Group, error) {
	return nil, fmt.Errorf("resolverd: catalog frame decoder not wired; supply one built against the deployed catalog service's generated client")
}
