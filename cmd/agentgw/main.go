package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"agentgw/internal/adapter/channel"
	"agentgw/internal/adapter/llm"
	"agentgw/internal/adapter/memory"
	"agentgw/internal/adapter/rag"
	"agentgw/internal/adapter/skill"
	"agentgw/internal/adapter/tool"
	"agentgw/internal/adapter/webhook"
	"agentgw/internal/domain"
	"agentgw/internal/infra/config"
	"agentgw/internal/infra/logger"
	"agentgw/internal/infra/tracer"
	"agentgw/internal/usecase"
	"agentgw/internal/usecase/scheduling"
)

func main() {
	cmd := &cli.Command{
		Name:  "agentgw",
		Usage: "local agent orchestration gateway",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
				Value:   "config.yaml",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			chatCommand(),
			skillsCommand(),
			sessionsCommand(),
			ingestCommand(),
			routeCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app holds the wired application.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	store    *memory.Store
	ragCli   *rag.Client
	svc      *usecase.Service
	planner  *usecase.Planner
	events   *webhook.Dispatcher
	closers  []func() error
	shutdown []func(context.Context) error
}

// buildApp wires every component from configuration. The delegate tool is
// registered after the service exists so delegation can call back into it.
func buildApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)

	a := &app{cfg: cfg, log: log}
	a.closers = append(a.closers, closeLog)

	stopTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return nil, err
	}
	a.shutdown = append(a.shutdown, stopTracer)

	store, err := memory.New(cfg.Storage.SQLitePath, log)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	skills := skill.NewLoader(cfg.Skills.Dir, log)
	if _, err := skills.Load(); err != nil {
		return nil, err
	}

	provider, err := llm.NewProvider(resolveProvider(cfg), cfg.LLM.CircuitBreaker, log)
	if err != nil {
		return nil, err
	}

	var ragSearcher domain.RAGSearcher
	if cfg.RAG.Enabled {
		a.ragCli = rag.NewClient(cfg.RAG.BaseURL, cfg.RAG.Collection, log)
		ragSearcher = a.ragCli
	}

	var events domain.EventSink
	if d := webhook.NewDispatcher(cfg.Webhooks, log); d != nil {
		a.events = d
		events = d
	}

	tools := tool.NewRegistry(log)
	a.svc = usecase.NewService(usecase.ServiceConfig{
		Skills:   skills,
		LLM:      provider,
		Tools:    tools,
		History:  store,
		RAG:      ragSearcher,
		Events:   events,
		Logger:   log,
		MaxDepth: cfg.Agent.MaxOrchestrationDepth,
	})

	if err := registerTools(tools, a.svc, a.ragCli, store, cfg, log); err != nil {
		return nil, err
	}

	a.planner = usecase.NewPlanner(provider, skills, cfg.LLM.Model, log)
	return a, nil
}

func registerTools(tools *tool.Registry, svc *usecase.Service, ragCli *rag.Client, store *memory.Store, cfg *config.Config, log *slog.Logger) error {
	all := []domain.Tool{
		tool.NewReadFileTool(),
		tool.NewListFilesTool(),
		tool.NewQueryDBTool(store.DB()),
		tool.NewDelegateTool(svc.RunSkill, cfg.Agent.MaxOrchestrationDepth, log),
	}
	if ragCli != nil {
		all = append(all,
			tool.NewSearchDocumentsTool(ragCli),
			tool.NewIngestDocumentTool(ragCli),
		)
	}
	for _, t := range all {
		if err := tools.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// resolveProvider picks the provider config matching the selected provider,
// falling back to a synthesized entry when none is declared.
func resolveProvider(cfg *config.Config) config.ProviderConfig {
	for _, p := range cfg.LLM.Providers {
		if p.Name == cfg.LLM.Provider || p.Type == cfg.LLM.Provider {
			if p.Model == "" {
				p.Model = cfg.LLM.Model
			}
			return p
		}
	}
	p := config.ProviderConfig{
		Name:  cfg.LLM.Provider,
		Type:  cfg.LLM.Provider,
		Model: cfg.LLM.Model,
	}
	switch p.Type {
	case "anthropic":
		p.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	case "xai":
		p.APIKey = os.Getenv("XAI_API_KEY")
	default:
		p.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return p
}

func (a *app) close() {
	if a.events != nil {
		a.events.Wait()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, fn := range a.shutdown {
		if err := fn(ctx); err != nil {
			a.log.Warn("shutdown step failed", "error", err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", "error", err)
		}
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API server",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := buildApp(ctx, cmd.String("config"))
			if err != nil {
				return err
			}
			defer a.close()

			server, err := channel.NewHTTPServer(a.cfg.Server, a.svc, a.planner, docStore(a.ragCli), a.store, a.log)
			if err != nil {
				return err
			}

			var sched *scheduling.Scheduler
			if a.cfg.Scheduler.Enabled {
				sched = scheduling.New(a.svc, a.cfg.Scheduler.Jobs, a.cfg.Storage.LogDir, a.log)
				if err := sched.Start(); err != nil {
					return err
				}
			}

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			select {
			case err := <-errCh:
				return err
			case <-sigCtx.Done():
			}

			a.log.Info("shutting down")
			if sched != nil {
				sched.Stop()
			}
			shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Stop(shutCtx)
		},
	}
}

// docStore avoids handing the server a typed nil when the knowledge base
// is disabled.
func docStore(c *rag.Client) channel.DocumentStore {
	if c == nil {
		return nil
	}
	return c
}

func chatCommand() *cli.Command {
	return &cli.Command{
		Name:      "chat",
		Usage:     "chat with a skill from the terminal",
		ArgsUsage: "[message]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "skill", Aliases: []string{"s"}, Usage: "skill to chat with", Required: true},
			&cli.StringFlag{Name: "session", Usage: "session id to resume"},
			&cli.StringFlag{Name: "model", Usage: "override the skill's model"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := buildApp(ctx, cmd.String("config"))
			if err != nil {
				return err
			}
			defer a.close()

			agent, err := a.svc.CreateAgent(ctx, cmd.String("skill"), usecase.AgentOptions{
				SessionID: cmd.String("session"),
				Model:     cmd.String("model"),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, "session:", agent.Session().ID)

			if msg := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " ")); msg != "" {
				return streamTurn(ctx, agent, msg)
			}

			// No message argument: interactive loop over stdin.
			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "/quit" || line == "/exit" {
					return nil
				}
				if err := streamTurn(ctx, agent, line); err != nil {
					fmt.Fprintln(os.Stderr, "error:", err)
				}
			}
		},
	}
}

func streamTurn(ctx context.Context, agent *usecase.Agent, msg string) error {
	out, errCh := agent.Run(ctx, msg)
	for chunk := range out {
		fmt.Print(chunk)
	}
	fmt.Println()
	return <-errCh
}

func skillsCommand() *cli.Command {
	return &cli.Command{
		Name:  "skills",
		Usage: "list loaded skills",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := buildApp(ctx, cmd.String("config"))
			if err != nil {
				return err
			}
			defer a.close()

			for _, sk := range a.svc.Skills() {
				fmt.Printf("%-20s %s\n", sk.Name, sk.Description)
				if len(sk.Tools) > 0 {
					fmt.Printf("%-20s tools: %s\n", "", strings.Join(sk.Tools, ", "))
				}
			}
			return nil
		},
	}
}

func sessionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "list recent sessions",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 20},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := buildApp(ctx, cmd.String("config"))
			if err != nil {
				return err
			}
			defer a.close()

			sessions, err := a.store.ListSessions(ctx, cmd.Int("limit"))
			if err != nil {
				return err
			}
			for _, s := range sessions {
				fmt.Printf("%s  %-20s %s\n", s.ID, s.SkillName, s.UpdatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "ingest a file into the knowledge base",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "skill", Usage: "restrict visibility to these skills"},
			&cli.StringSliceFlag{Name: "tag", Usage: "tag the document"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("file argument is required")
			}
			a, err := buildApp(ctx, cmd.String("config"))
			if err != nil {
				return err
			}
			defer a.close()

			if a.ragCli == nil {
				return fmt.Errorf("knowledge base is disabled in config")
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			chunks, err := a.ragCli.Ingest(ctx, string(data), path, cmd.StringSlice("skill"), cmd.StringSlice("tag"))
			if err != nil {
				return err
			}
			fmt.Printf("ingested %s as %d chunks\n", path, chunks)
			return nil
		},
	}
}

func routeCommand() *cli.Command {
	return &cli.Command{
		Name:      "route",
		Usage:     "ask the planner which skill fits a message",
		ArgsUsage: "<message>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			msg := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
			if msg == "" {
				return fmt.Errorf("message argument is required")
			}
			a, err := buildApp(ctx, cmd.String("config"))
			if err != nil {
				return err
			}
			defer a.close()

			decision, err := a.planner.Route(ctx, msg)
			if err != nil {
				return err
			}
			if decision.Skill == "" {
				fmt.Println("no skill matched:", decision.Reasoning)
				return nil
			}
			fmt.Printf("skill:   %s\nreason:  %s\nrefined: %s\n", decision.Skill, decision.Reasoning, decision.RefinedMessage)
			return nil
		},
	}
}
