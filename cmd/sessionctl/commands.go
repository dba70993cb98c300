package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mkrupp/jobboard-session/internal/domain"
	context_ "github.com/mkrupp/jobboard-session/internal/infra/context"
	http_ "github.com/mkrupp/jobboard-session/internal/infra/transport/http"
	"github.com/mkrupp/jobboard-session/internal/svc/messagesvc"
	"github.com/mkrupp/jobboard-session/internal/svc/sessionsvc"
)

//nolint:gochecknoglobals
var stdout io.Writer = os.Stdout

// startup restores the persisted session, as the app does on launch.
// A stored session that fails revalidation is dropped, not reported.
func (a *app) startup(ctx context.Context) (context.Context, *domain.User) {
	user, err := a.svc.CheckAuth(ctx)
	if err != nil && !errors.Is(err, domain.ErrNotAuthenticated) {
		a.log.WarnContext(ctx, "stored session dropped", "error", err)
	}

	if user == nil {
		return ctx, nil
	}

	return context_.WithUserID(ctx, user.UserID), user
}

func (a *app) requireUser(ctx context.Context) (context.Context, error) {
	ctx, user := a.startup(ctx)
	if user == nil {
		return ctx, fmt.Errorf("%w: run sessionctl login first", domain.ErrNotAuthenticated)
	}

	return ctx, nil
}

func (a *app) whoami(ctx context.Context) error {
	_, user := a.startup(ctx)
	if user == nil {
		_, err := fmt.Fprintln(stdout, "not signed in")

		return err //nolint:wrapcheck
	}

	return printJSON(user)
}

func (a *app) login(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}

	role, err := domain.ParseRole(args[0])
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	ctx, _ = a.startup(ctx)

	if a.sessions == nil {
		return a.loginWeb(ctx, role)
	}

	sock, err := http_.Listen(ctx, a.cfg.HTTP.HTTPTransportConfig)
	if err != nil {
		return fmt.Errorf("open callback listener: %w", err)
	}

	listenCtx, stopListener := context.WithCancel(ctx)
	defer stopListener()

	group, groupCtx := errgroup.WithContext(listenCtx)

	group.Go(func() error {
		return http_.Serve(groupCtx, sock, a.transport(), a.cfg.HTTP.HTTPTransportConfig)
	})

	var user *domain.User

	group.Go(func() error {
		defer stopListener()

		var err error

		user, err = a.svc.Login(groupCtx, role)

		return err
	})

	if err := group.Wait(); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	return printJSON(user)
}

func (a *app) loginWeb(ctx context.Context, role domain.Role) error {
	if _, err := a.svc.Login(ctx, role); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	_, err := fmt.Fprintf(stdout, "continue in the browser, then run: sessionctl open-url --role %s <redirect url>\n", role)

	return err //nolint:wrapcheck
}

func (a *app) logout(ctx context.Context) error {
	ctx, _ = a.startup(ctx)

	if err := a.svc.Logout(ctx); err != nil {
		// the local session is gone either way
		a.log.WarnContext(ctx, "backend logout failed", "error", err)
	}

	_, err := fmt.Fprintln(stdout, "signed out")

	return err //nolint:wrapcheck
}

func (a *app) openURL(ctx context.Context, args []string) error {
	rawURL, role, err := parseOpenURLArgs(args)
	if err != nil {
		return err
	}

	ctx, _ = a.startup(ctx)

	var user *domain.User

	// a new process has no pending login to take the role from
	if role != "" {
		token, ok := sessionsvc.ParseSessionID(rawURL)
		if !ok {
			return fmt.Errorf("open url: %w", domain.ErrMissingSessionToken)
		}

		user, err = a.svc.ExchangeSessionID(ctx, token, role)
	} else {
		user, err = a.svc.HandleRedirect(ctx, rawURL)
	}

	if err != nil {
		return fmt.Errorf("open url: %w", err)
	}

	return printJSON(user)
}

// parseOpenURLArgs parses "[--role <role>] <url>". role is empty when not given.
func parseOpenURLArgs(args []string) (string, domain.Role, error) {
	var (
		fs   = flag.NewFlagSet("open-url", flag.ContinueOnError)
		role = fs.String("role", "", "role to exchange the session as")
	)

	fs.SetOutput(io.Discard)

	if err := fs.Parse(args); err != nil {
		return "", "", fmt.Errorf("open url: %w", err)
	}

	if fs.NArg() != 1 {
		return "", "", errUsage
	}

	if *role == "" {
		return fs.Arg(0), "", nil
	}

	parsed, err := domain.ParseRole(*role)
	if err != nil {
		return "", "", fmt.Errorf("open url: %w", err)
	}

	return fs.Arg(0), parsed, nil
}

// serve keeps the link listener up so callbacks and forwarded deep links
// reach the running process.
func (a *app) serve(ctx context.Context) error {
	ctx, _ = a.startup(ctx)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return http_.ListenAndServe(groupCtx, a.transport(), a.cfg.HTTP.HTTPTransportConfig)
	})

	group.Go(func() error {
		for snap := range a.svc.Subscribe(groupCtx) {
			userID := ""
			if snap.User != nil {
				userID = snap.User.UserID
			}

			a.log.InfoContext(groupCtx, "session changed",
				"state", snap.State.String(),
				"user_id", userID,
				"loading", snap.Loading,
				"version", snap.Version,
			)
		}

		return nil
	})

	if err := group.Wait(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	return nil
}

func (a *app) profile(ctx context.Context, args []string) error {
	var (
		fs = flag.NewFlagSet("profile", flag.ContinueOnError)

		name       = fs.String("name", "", "display name")
		phone      = fs.String("phone", "", "phone number")
		profession = fs.String("profession", "", "profession")
		skills     = fs.String("skills", "", "comma separated skills")
		experience = fs.Int("experience", -1, "years of experience")
		bio        = fs.String("bio", "", "short bio")
		city       = fs.String("city", "", "city")
		area       = fs.String("area", "", "area within the city")
	)

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("profile: %w", err)
	}

	var patch domain.UserPatch

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			patch.Name = name
		case "phone":
			patch.Phone = phone
		case "profession":
			patch.Profession = profession
		case "skills":
			list := splitList(*skills)
			patch.Skills = &list
		case "experience":
			patch.ExperienceYears = experience
		case "bio":
			patch.Bio = bio
		case "city":
			patch.City = city
		case "area":
			patch.Area = area
		}
	})

	if patch.Empty() {
		return fmt.Errorf("profile: %w: no fields given", domain.ErrInvalidPatch)
	}

	if err := patch.Validate(); err != nil {
		return fmt.Errorf("profile: %w", err)
	}

	ctx, err := a.requireUser(ctx)
	if err != nil {
		return err
	}

	confirmed, err := a.client.UpdateProfile(ctx, patch)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}

	user, err := a.svc.UpdateUser(ctx, domain.PatchFromUser(confirmed))
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}

	return printJSON(user)
}

func (a *app) messages(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}

	ctx, err := a.requireUser(ctx)
	if err != nil {
		return err
	}

	poller := messagesvc.NewConversationPoller(a.client, a.cfg.Messages)

	seen := 0

	if err := poller.Run(ctx, args[0], func(messages []domain.Message) {
		if len(messages) < seen {
			seen = 0
		}

		for _, m := range messages[seen:] {
			_, _ = fmt.Fprintf(stdout, "%s  %s: %s\n", m.CreatedAt, m.SenderName, m.Content)
		}

		seen = len(messages)
	}); err != nil {
		return fmt.Errorf("messages: %w", err)
	}

	return nil
}

func (a *app) transport() *sessionsvc.HTTPTransport {
	return sessionsvc.NewHTTPTransport(
		sessionsvc.CallbackRouter{Sessions: a.sessions, Service: a.svc},
		a.cfg.HTTP,
	)
}

func splitList(s string) []string {
	list := []string{}

	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}

	return list
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	return nil
}
