// ABOUTME: CLI entry point for omnitalk group chat
// ABOUTME: Parses flags, opens state, fetches directory data, runs the REPL or one-shot mode

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/niushuanan/omnitalk-x/internal/auth"
	"github.com/niushuanan/omnitalk-x/internal/directory"
	"github.com/niushuanan/omnitalk-x/internal/dispatch"
	"github.com/niushuanan/omnitalk-x/internal/history"
	"github.com/niushuanan/omnitalk-x/internal/kv"
	"github.com/niushuanan/omnitalk-x/internal/log"
	"github.com/niushuanan/omnitalk-x/internal/style"
	"github.com/niushuanan/omnitalk-x/internal/transcript"
	"github.com/niushuanan/omnitalk-x/pkg/gateway"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	args := parseFlags()

	if args.version {
		fmt.Printf("omnitalk %s (%s)\n", version, commit)
		os.Exit(0)
	}

	if err := run(args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app bundles the wired components the REPL drives.
type app struct {
	dispatcher *dispatch.Dispatcher
	auth       *auth.Store
	history    *history.Store
	styles     *style.Store
	groups     []directory.GroupInfo

	group   *directory.GroupInfo
	private string
}

func run(args cliArgs) error {
	if args.verbose {
		log.SetLevel(log.LevelDebug)
	}

	backend, err := openBackend(args)
	if err != nil {
		return err
	}

	creds := auth.NewStore(backend)
	if args.key != "" {
		if err := creds.SetKey(args.key); err != nil {
			return fmt.Errorf("storing api key: %w", err)
		}
	}
	if creds.Key() == "" {
		log.Warn("no api key configured; set one with -key or OMNITALK_API_KEY")
	}

	client := gateway.NewClient(gateway.NormalizeBaseURL(args.baseURL))

	prompts := directory.NewPrompts(backend)
	if args.prompts != "" {
		if err := prompts.LoadManifest(args.prompts); err != nil {
			return fmt.Errorf("loading prompts manifest: %w", err)
		}
	}

	groups := fetchDirectory(context.Background(), client, prompts)

	transcripts := transcript.NewLog()
	transcripts.SetObserver(printMessage)

	hist := history.NewStore(backend)
	styles := style.NewStore(backend)
	a := &app{
		dispatcher: dispatch.New(client, hist, styles, prompts, transcripts),
		auth:       creds,
		history:    hist,
		styles:     styles,
		groups:     groups,
		private:    strings.ToLower(args.private),
	}
	a.group = findGroup(groups, args.group)
	if args.group != "" && a.group.ID != args.group {
		log.Warn("group %s not found, using %s", args.group, a.group.ID)
	}

	if args.message != "" {
		return a.send(context.Background(), args.message)
	}
	return a.repl(context.Background())
}

// openBackend selects the persistent key-value store.
func openBackend(args cliArgs) (kv.Store, error) {
	dir := args.stateDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		dir = filepath.Join(home, ".omnitalk")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	switch args.store {
	case "sqlite":
		db, err := kv.OpenSQLite(filepath.Join(dir, "state.db"))
		if err != nil {
			return nil, fmt.Errorf("opening state db: %w", err)
		}
		return db, nil
	case "file":
		return kv.NewFile(filepath.Join(dir, "state.json")), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", args.store)
	}
}

// fetchDirectory loads groups and default prompts from the gateway
// concurrently. Either fetch failing degrades to local defaults.
func fetchDirectory(ctx context.Context, client *gateway.Client, prompts *directory.Prompts) []directory.GroupInfo {
	var groups []directory.GroupInfo

	var g errgroup.Group
	g.Go(func() error {
		fetched, err := client.FetchGroups(ctx)
		if err != nil {
			log.Warn("fetching groups: %v", err)
			return nil
		}
		groups = fetched
		return nil
	})
	g.Go(func() error {
		defaults, err := client.FetchDefaultPrompts(ctx)
		if err != nil {
			log.Warn("fetching default prompts: %v", err)
			return nil
		}
		prompts.SetDefaults(defaults)
		return nil
	})
	g.Wait()

	if len(groups) == 0 {
		groups = []directory.GroupInfo{*directory.DefaultGroup()}
	}
	for i := range groups {
		if groups[i].Announcement == "" {
			groups[i].Announcement = directory.DefaultAnnouncement(&groups[i])
		}
	}
	return groups
}

// findGroup returns the group with the given id, falling back to the
// default group.
func findGroup(groups []directory.GroupInfo, id string) *directory.GroupInfo {
	for i := range groups {
		if groups[i].ID == id {
			return &groups[i]
		}
	}
	for i := range groups {
		if groups[i].IsDefault {
			return &groups[i]
		}
	}
	return directory.DefaultGroup()
}

func (a *app) send(ctx context.Context, text string) error {
	receipt, err := a.dispatcher.Submit(ctx, dispatch.Submission{
		Text:         text,
		PrivateModel: a.private,
		Group:        a.group,
		APIKey:       a.auth.Key(),
	})
	if err != nil {
		return err
	}
	if len(receipt.Targets) == 0 {
		fmt.Println("(no providers addressed)")
	}
	return nil
}

func (a *app) repl(ctx context.Context) error {
	a.printLocation()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := a.command(line)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		if err := a.send(ctx, line); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

// command handles one slash command. It reports whether the REPL should
// exit.
func (a *app) command(line string) (bool, error) {
	fields := strings.Fields(line)
	rest := fields[1:]

	switch fields[0] {
	case "/quit", "/exit":
		return true, nil

	case "/groups":
		for _, g := range a.groups {
			marker := " "
			if a.private == "" && g.ID == a.group.ID {
				marker = "*"
			}
			fmt.Printf("%s %s  %s (%d bots)\n", marker, g.ID, g.Name, len(g.Bots))
		}
		return false, nil

	case "/group":
		if len(rest) != 1 {
			return false, fmt.Errorf("usage: /group <id>")
		}
		g := findGroup(a.groups, rest[0])
		if g.ID != rest[0] {
			return false, fmt.Errorf("unknown group %s", rest[0])
		}
		a.group = g
		a.private = ""
		a.printLocation()
		return false, nil

	case "/private":
		if len(rest) != 1 {
			return false, fmt.Errorf("usage: /private <model>")
		}
		key := strings.ToLower(rest[0])
		if _, ok := directory.ProviderFor(key); !ok {
			return false, fmt.Errorf("unknown model %s", rest[0])
		}
		a.private = key
		a.printLocation()
		return false, nil

	case "/style":
		return false, a.styleCommand(rest)

	case "/clear":
		if a.private != "" {
			provider, _ := directory.ProviderFor(a.private)
			if err := a.history.Clear(history.PrivateScope(provider)); err != nil {
				return false, err
			}
		} else if err := a.history.ClearGroup(a.group.ContextGroupID()); err != nil {
			return false, err
		}
		fmt.Println("context cleared")
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
}

// styleCommand shows or updates generation parameters for the active
// scope, e.g. /style temp=0.9 tokens=2000 top_p=0.8.
func (a *app) styleCommand(settings []string) error {
	groupID := ""
	if a.private == "" {
		groupID = a.group.ContextGroupID()
	}

	if len(settings) == 0 {
		cfg := a.styles.Resolve(groupID)
		fmt.Printf("temp=%g tokens=%d top_p=%g\n", cfg.Temperature, cfg.MaxTokens, cfg.TopP)
		return nil
	}

	var upd style.Update
	for _, s := range settings {
		key, value, ok := strings.Cut(s, "=")
		if !ok {
			return fmt.Errorf("usage: /style [temp=N] [tokens=N] [top_p=N]")
		}
		switch key {
		case "temp":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return fmt.Errorf("invalid temp %q", value)
			}
			upd.Temperature = &v
		case "tokens":
			v, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid tokens %q", value)
			}
			upd.MaxTokens = &v
		case "top_p":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return fmt.Errorf("invalid top_p %q", value)
			}
			upd.TopP = &v
		default:
			return fmt.Errorf("unknown style setting %q", key)
		}
	}

	cfg, err := a.styles.Write(groupID, upd)
	if err != nil {
		return err
	}
	fmt.Printf("temp=%g tokens=%d top_p=%g\n", cfg.Temperature, cfg.MaxTokens, cfg.TopP)
	return nil
}

func (a *app) printLocation() {
	if a.private != "" {
		fmt.Printf("-- private chat with %s --\n", directory.BotName(a.private))
		return
	}
	fmt.Printf("-- %s (%s) --\n", a.group.Name, a.group.ID)
}

// printMessage renders one transcript entry as it is appended.
func printMessage(m transcript.Message) {
	if m.SenderType == transcript.SenderUser {
		return
	}
	fmt.Printf("[%s] %s: %s\n", m.Date, directory.BotName(m.Model), m.Text)
}
