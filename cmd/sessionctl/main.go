package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/browser"
	"golang.org/x/sync/errgroup"

	"github.com/mkrupp/jobboard-session/internal/infra/config"
	context_ "github.com/mkrupp/jobboard-session/internal/infra/context"
	"github.com/mkrupp/jobboard-session/internal/infra/logging"
	"github.com/mkrupp/jobboard-session/internal/repo/cache"
	"github.com/mkrupp/jobboard-session/internal/svc/messagesvc"
	"github.com/mkrupp/jobboard-session/internal/svc/sessionsvc"
	"github.com/mkrupp/jobboard-session/internal/svc/sessionsvc/backendclient"
)

const (
	appName = "jobboard"
	svcName = "sessionctl"
)

var errUsage = errors.New("usage: sessionctl whoami|login <job_seeker|employer>|logout|profile [flags]|open-url [--role <role>] <url>|serve|messages <user_id>")

type Config struct {
	config.EnvConfig

	Log      logging.LoggerConfig           `env:", prefix=LOG_"`
	Session  sessionsvc.SessionConfig       `env:", prefix=SESSION_"`
	Backend  backendclient.HTTPClientConfig `env:", prefix=BACKEND_"`
	HTTP     sessionsvc.HTTPTransportConfig `env:", prefix=HTTP_"`
	Cache    cache.Config                   `env:", prefix=CACHE_"`
	Messages messagesvc.PollerConfig        `env:", prefix=MESSAGES_"`
}

func main() {
	var (
		cfg Config

		configPrefix = strings.ToUpper(strings.Join([]string{appName, svcName}, "_"))
		loggerName   = strings.ToLower(strings.Join([]string{appName, svcName}, "."))
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.Parse(ctx, &cfg, configPrefix); err != nil {
		panic(err)
	}

	logging.Configure(ctx, cfg.Log, loggerName)

	if err := run(ctx, cfg, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1) //nolint:gocritic
	}
}

func run(ctx context.Context, cfg Config, args []string) (err error) {
	ctx = context_.WithTraceID(ctx, context_.NewTraceID())

	defer func() {
		log := logging.GetLogger("cmd.sessionctl")

		if err != nil {
			log.ErrorContext(ctx, "error", "err", err)
		} else {
			log.DebugContext(ctx, "done")
		}
	}()

	if len(args) == 0 {
		return errUsage
	}

	if cfg.Session.WebOrigin == "" {
		cfg.Session.WebOrigin = cfg.Backend.URL
	}

	app, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer app.svc.Close()

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)

	group.Go(func() error {
		return app.svc.Run(groupCtx)
	})

	cmdErr := app.dispatch(ctx, args[0], args[1:])

	cancel()

	if err := group.Wait(); err != nil {
		return errors.Join(cmdErr, fmt.Errorf("session service: %w", err))
	}

	return cmdErr
}

type app struct {
	cfg      Config
	client   *backendclient.HTTPClient
	sessions *sessionsvc.LoopbackAuthSession
	svc      *sessionsvc.SessionService
	log      logging.Logger
}

func newApp(cfg Config) (*app, error) {
	client, err := backendclient.NewHTTPClient(cfg.Backend, nil)
	if err != nil {
		return nil, fmt.Errorf("new backend client: %w", err)
	}

	cacheFactory, err := cache.NewRepositoryFactory(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("new cache factory: %w", err)
	}

	var (
		sessions *sessionsvc.LoopbackAuthSession
		authSess sessionsvc.AuthSession
	)

	switch cfg.Session.Platform {
	case sessionsvc.PlatformWeb:
		authSess = sessionsvc.NewRedirectAuthSession(browser.OpenURL)
	default:
		sessions = sessionsvc.NewLoopbackAuthSession(browser.OpenURL)
		authSess = sessions
	}

	svc, err := sessionsvc.NewSessionService(cacheFactory, client, authSess, cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("new session service: %w", err)
	}

	return &app{
		cfg:      cfg,
		client:   client,
		sessions: sessions,
		svc:      svc,
		log:      logging.GetLogger("cmd.sessionctl"),
	}, nil
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "whoami":
		return a.whoami(ctx)
	case "login":
		return a.login(ctx, args)
	case "logout":
		return a.logout(ctx)
	case "profile":
		return a.profile(ctx, args)
	case "open-url":
		return a.openURL(ctx, args)
	case "serve":
		return a.serve(ctx)
	case "messages":
		return a.messages(ctx, args)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}
