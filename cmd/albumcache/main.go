package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/mmcdole/albumcache/internal/adapter"
	"github.com/mmcdole/albumcache/internal/domain"
	"github.com/mmcdole/albumcache/internal/itunes"
	"github.com/mmcdole/albumcache/internal/service"
	"github.com/mmcdole/albumcache/internal/store"
)

// Version is set at build time via -ldflags
var Version = "dev"

// clearSpinnerLine clears the spinner line from the terminal
const clearSpinnerLine = "\r                                    \r"

const usage = `usage: albumcache [flags] <command> [args]

commands:
  search <term>          search albums (cached results are served offline)
  image <url> [file]     load album artwork, optionally writing it to file
  images                 list cached artwork URLs
  history [filter]       list searched terms, fuzzy-filtered when filter is given
  forget <term>          drop one term and its cached results
  clear                  drop all search history and cached results
  reconcile              repair history/result mismatches
  init                   write the current configuration to the config file

flags:
`

type options struct {
	configFile string
	memory     bool
	verbose    bool
}

func main() {
	var (
		opts        options
		showVersion bool
	)
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.StringVar(&opts.configFile, "config", "", "config file (default ~/.config/albumcache/config.yaml)")
	flag.BoolVar(&opts.memory, "memory", false, "keep the cache in memory for this run")
	flag.BoolVar(&opts.verbose, "verbose", false, "log to stderr")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("albumcache %s\n", Version)
		return
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, args []string) error {
	// Load configuration
	cfg, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if args[0] == "init" {
		return runInit(cfg)
	}

	// Setup logger
	logger, closer, err := adapter.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger, closer = adapter.NullLogger(), io.NopCloser(nil)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	logger.Info("starting albumcache", "version", Version, "command", args[0], "in_memory", cfg.InMemory())

	if !cfg.InMemory() && cfg.Store.Passphrase == "" {
		passphrase, err := promptPassphrase()
		if err != nil {
			return err
		}
		cfg.Store.Passphrase = passphrase
	}

	kv, err := store.Open(cfg.StoreOptions(), logger)
	if err != nil {
		if errors.Is(err, store.ErrWrongPassphrase) {
			return errors.New("wrong passphrase for the album cache")
		}
		return fmt.Errorf("failed to open album cache: %w", err)
	}
	defer kv.Close()

	client := itunes.NewClient(cfg.RemoteOptions(), logger)
	svc := service.New(kv, client, cfg.ServiceOptions(), logger)
	defer svc.Wait()

	cmd, rest := args[0], args[1:]

	// Repair anything an interrupted run left behind
	if cmd != "reconcile" {
		if report, err := svc.Reconcile(); err != nil {
			logger.Warn("reconcile failed", "error", err)
		} else if !report.Clean() {
			logger.Info("reconciled cache", "dropped", report.DroppedTerms, "orphans", report.OrphanEntries)
		}
	}

	switch cmd {
	case "search":
		return runSearch(ctx, svc, strings.Join(rest, " "))
	case "image":
		return runImage(ctx, svc, rest)
	case "images":
		return runImages(svc)
	case "history":
		return runHistory(svc, strings.Join(rest, " "))
	case "forget":
		return runForget(svc, strings.Join(rest, " "))
	case "clear":
		return runClear(svc)
	case "reconcile":
		return runReconcile(svc)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func loadConfig(opts options) (*adapter.Config, error) {
	var (
		cfg *adapter.Config
		err error
	)
	if opts.configFile != "" {
		cfg, err = adapter.LoadConfigFrom(opts.configFile)
	} else {
		cfg, err = adapter.LoadConfig()
	}
	if err != nil {
		return nil, err
	}

	if opts.memory {
		cfg.Store.Dir = ""
	}
	if opts.verbose {
		cfg.Logging.File = adapter.StderrLog
	}
	return cfg, nil
}

// promptPassphrase reads the store passphrase without echoing it
func promptPassphrase() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("%w: set ALBUMCACHE_STORE_PASSPHRASE or run with -memory", store.ErrNoKey)
	}

	fmt.Fprint(os.Stderr, "Cache passphrase: ")
	passphrase, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr) // Add newline after hidden input
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	if len(passphrase) == 0 {
		return "", store.ErrNoKey
	}
	return string(passphrase), nil
}

func runInit(cfg *adapter.Config) error {
	if err := adapter.SaveConfig(cfg); err != nil {
		return err
	}
	fmt.Println(SuccessStyle.Render("✓ Configuration saved!"))
	return nil
}

func runSearch(ctx context.Context, svc *service.Service, query string) error {
	if strings.TrimSpace(query) == "" {
		return domain.ErrEmptyTerm
	}

	res := waitWithSpinner(ctx, fmt.Sprintf("Searching %q...", query), svc.SearchAlbumsAsync(ctx, query))
	if res.Err != nil {
		var fe *domain.FetchError
		if errors.As(res.Err, &fe) {
			if similar := svc.SimilarTerms(query, 3); len(similar) > 0 {
				fmt.Fprintln(os.Stderr, DimStyle.Render("cached searches you may mean: "+strings.Join(similar, ", ")))
			}
		}
		return res.Err
	}

	fmt.Print(renderAlbums(query, res.Albums))
	return nil
}

// waitWithSpinner waits for a search result, animating a spinner on a terminal
func waitWithSpinner(ctx context.Context, label string, resultCh <-chan service.AlbumsResult) service.AlbumsResult {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return <-resultCh
	}

	frame := 0
	fmt.Printf("\r%s %s", SpinnerFrames[frame], label)

	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case res := <-resultCh:
			fmt.Print(clearSpinnerLine)
			return res
		case <-ticker.C:
			frame++
			fmt.Printf("\r%s %s", AccentStyle.Render(SpinnerFrames[frame%len(SpinnerFrames)]), label)
		case <-ctx.Done():
			fmt.Print(clearSpinnerLine)
			// The search observes ctx too; its result still arrives
			return <-resultCh
		}
	}
}

func runImage(ctx context.Context, svc *service.Service, args []string) error {
	if len(args) == 0 {
		return errors.New("image: missing url")
	}
	url := args[0]

	data, err := svc.LoadImage(ctx, url)
	if err != nil {
		return err
	}

	format, _ := itunes.ValidateImage(data)
	if len(args) > 1 {
		if err := os.WriteFile(args[1], data, 0644); err != nil {
			return fmt.Errorf("failed to write image: %w", err)
		}
		fmt.Println(SuccessStyle.Render(fmt.Sprintf("✓ wrote %s (%s, %d bytes)", args[1], format, len(data))))
		return nil
	}

	fmt.Printf("%s %s\n", TitleStyle.Render(url), DimStyle.Render(fmt.Sprintf("%s, %d bytes", format, len(data))))
	return nil
}

func runImages(svc *service.Service) error {
	urls, err := svc.CachedImages()
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		fmt.Println(DimStyle.Render("no cached images"))
		return nil
	}
	for _, u := range urls {
		fmt.Println(SubtitleStyle.Render(u))
	}
	return nil
}

func runHistory(svc *service.Service, filter string) error {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		fmt.Print(renderHistory(svc.History(), nil, false))
		return nil
	}
	fmt.Print(renderHistory(nil, svc.MatchHistory(filter), true))
	return nil
}

func runForget(svc *service.Service, query string) error {
	if strings.TrimSpace(query) == "" {
		return errors.New("forget: missing term")
	}
	if err := svc.Forget(query); err != nil {
		return err
	}
	fmt.Println(SuccessStyle.Render(fmt.Sprintf("✓ forgot %q", query)))
	return nil
}

func runClear(svc *service.Service) error {
	n := len(svc.History())
	if err := svc.ClearHistory(); err != nil {
		return err
	}
	fmt.Println(SuccessStyle.Render(fmt.Sprintf("✓ cleared %d searches", n)))
	return nil
}

func runReconcile(svc *service.Service) error {
	report, err := svc.Reconcile()
	if err != nil {
		return err
	}
	if report.Clean() {
		fmt.Println(SuccessStyle.Render("✓ cache is consistent"))
		return nil
	}
	fmt.Printf("dropped terms: %s\norphan entries: %s\n",
		SubtitleStyle.Render(strings.Join(report.DroppedTerms, ", ")),
		SubtitleStyle.Render(strings.Join(report.OrphanEntries, ", ")))
	return nil
}
