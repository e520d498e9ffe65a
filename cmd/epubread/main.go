package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/yuanying/epubread/internal/cache"
	"github.com/yuanying/epubread/internal/config"
	"github.com/yuanying/epubread/internal/epub"
	"github.com/yuanying/epubread/internal/library"
	"github.com/yuanying/epubread/internal/metrics"
	"github.com/yuanying/epubread/internal/navigation"
	"github.com/yuanying/epubread/internal/render"
	"github.com/yuanying/epubread/internal/server"
)

const shutdownTimeout = 5 * time.Second

// cliOptions is the merged result of defaults, config file, environment and
// flags for one invocation.
type cliOptions struct {
	BookPath string
	Config   *config.Config
	Logger   *slog.Logger
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "epubread [flags] <book.epub>",
		Short: "Read EPUB books in the browser",
		Long: `epubread opens an EPUB book and serves it on a local address so any
browser can act as the reader. Chapter navigation, links between chapters
and a back history are handled by epubread; the reading position is saved
and restored the next time the same book is opened.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd, args)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "Configuration file (YAML or JSON)")
	pf.String("cache-dir", "", "Directory for extracted books (default: user cache dir)")
	pf.String("match", "", "Link matching: contains or exact (default: contains)")
	pf.String("log-level", "", "Log level: debug, info, warn, error (default: info)")
	pf.String("log-format", "", "Log format: text or json (default: text)")
	pf.BoolP("verbose", "v", false, "Enable debug logging (overrides --log-level)")

	f := rootCmd.Flags()
	f.StringP("listen", "l", "", "Address to serve the book on (default: 127.0.0.1:8421)")
	f.String("stylesheet", "", "CSS file injected into every chapter")
	f.Bool("no-resume", false, "Start at the first chapter instead of the saved position")

	rootCmd.AddCommand(newInfoCmd(), newResolveCmd(), newRecentCmd(), newForgetCmd())
	return rootCmd
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <book.epub>",
		Short: "Print the title and spine of a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd, args)
			if err != nil {
				return err
			}
			ob, err := openBook(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return printInfo(cmd.OutOrStdout(), ob.session)
		},
	}
}

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <book.epub> <link>",
		Short: "Print the spine position a link points to",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd, args[:1])
			if err != nil {
				return err
			}
			ob, err := openBook(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return printResolve(cmd.OutOrStdout(), ob.session, args[1])
		},
	}
}

func newRecentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List recently read books with their saved positions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd, nil)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			return printRecent(cmd.OutOrStdout(), opts, limit)
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "Maximum number of books to list")
	return cmd
}

func newForgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget <book.epub>",
		Short: "Delete the saved position and extracted copy of a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd, args)
			if err != nil {
				return err
			}
			return forget(cmd.OutOrStdout(), opts)
		},
	}
}

// commandFlags returns the flags of cmd including persistent flags of the
// command and its parents, whether or not they have been parsed yet.
func commandFlags(cmd *cobra.Command) *pflag.FlagSet {
	flags := cmd.Flags()
	flags.AddFlagSet(cmd.PersistentFlags())
	flags.AddFlagSet(cmd.InheritedFlags())
	return flags
}

func readCLIOptions(cmd *cobra.Command, args []string) (cliOptions, error) {
	flags := commandFlags(cmd)

	cfg := config.Default()
	if path, _ := flags.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cliOptions{}, fmt.Errorf("--config: %w", err)
		}
		cfg = loaded
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return cliOptions{}, err
	}

	stringFlags := []struct {
		name string
		dst  *string
	}{
		{"cache-dir", &cfg.Cache.Dir},
		{"match", &cfg.Links.Match},
		{"log-level", &cfg.Log.Level},
		{"log-format", &cfg.Log.Format},
		{"listen", &cfg.Listen},
		{"stylesheet", &cfg.Render.Stylesheet},
	}
	for _, sf := range stringFlags {
		if flags.Lookup(sf.name) == nil || !flags.Changed(sf.name) {
			continue
		}
		v, _ := flags.GetString(sf.name)
		*sf.dst = v
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	cfg.Links.Match = strings.ToLower(cfg.Links.Match)

	if noResume, _ := flags.GetBool("no-resume"); noResume {
		cfg.Resume = false
	}
	if verbose, _ := flags.GetBool("verbose"); verbose {
		cfg.Log.Level = "debug"
	}

	if err := validateFlags(cfg); err != nil {
		return cliOptions{}, err
	}

	opts := cliOptions{
		Config: cfg,
		Logger: buildLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format),
	}
	if len(args) > 0 {
		opts.BookPath = args[0]
	}
	return opts, nil
}

// validateFlags reports configuration errors in terms of the flag that sets
// each value.
func validateFlags(cfg *config.Config) error {
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("--log-level must be one of debug, info, warn, error: %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("--log-format must be text or json: %q", cfg.Log.Format)
	}
	switch cfg.Links.Match {
	case config.MatchContains, config.MatchExact:
	default:
		return fmt.Errorf("--match must be %s or %s: %q", config.MatchContains, config.MatchExact, cfg.Links.Match)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func buildLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// openedBook is a book extracted into the cache with a fresh session.
type openedBook struct {
	key     string
	dir     string
	book    *epub.Book
	session *navigation.Session
}

func openBook(ctx context.Context, opts cliOptions) (*openedBook, error) {
	cfg := opts.Config
	logger := opts.Logger
	start := time.Now()

	store, err := cache.Open(cfg.Cache.Dir)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	entry, err := store.PutFile(ctx, opts.BookPath)
	if err != nil {
		return nil, fmt.Errorf("extracting book: %w", err)
	}
	metrics.RecordCacheLookup(entry.Cached)

	book, err := epub.Load(entry.Dir)
	if err != nil {
		return nil, fmt.Errorf("loading book: %w", err)
	}
	metrics.RecordBookLoad(time.Since(start))

	logger.Debug("book loaded",
		"title", book.Title,
		"key", entry.Key,
		"cache", store.Root(),
		"cached", entry.Cached,
		"package", book.PackagePath,
		"chapters", len(book.Spine))

	var matcher navigation.Matcher = navigation.ContainmentMatcher{}
	if cfg.Links.Match == config.MatchExact {
		matcher = navigation.ExactMatcher{BaseDir: book.BaseDir}
	}

	return &openedBook{
		key:  entry.Key,
		dir:  entry.Dir,
		book: book,
		session: navigation.NewSession(book,
			navigation.WithMatcher(matcher),
			navigation.WithLogger(logger)),
	}, nil
}

func serve(ctx context.Context, opts cliOptions) error {
	cfg := opts.Config
	logger := opts.Logger

	ob, err := openBook(ctx, opts)
	if err != nil {
		return err
	}

	db, err := library.OpenOrCreate(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("opening state database: %w", err)
	}
	defer func() { _ = db.Close() }()
	logger.Debug("state database", "path", db.Path())

	if cfg.Resume {
		st, ok, err := db.LoadState(ob.key)
		switch {
		case err != nil:
			logger.Warn("could not load saved position", "error", err)
		case ok:
			ob.session.Restore(st)
			logger.Info("resuming", "position", ob.session.Position())
		}
	}

	stylesheet, err := render.LoadStylesheet(cfg.Render.Stylesheet)
	if err != nil {
		return err
	}

	save := func(st navigation.State) {
		if err := db.SaveState(ob.key, ob.book.Title, opts.BookPath, st); err != nil {
			logger.Error("saving reading state", "error", err)
		}
	}

	srv := server.New(ob.session, ob.dir, server.Options{
		Stylesheet: stylesheet,
		CoverWidth: cfg.Render.CoverWidth,
		OnChange:   save,
	}, logger)

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Listen, err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}

	save(srv.Snapshot())
	return nil
}

func printRecent(w io.Writer, opts cliOptions, limit int) error {
	db, err := library.OpenOrCreate(opts.Config.DatabasePath())
	if err != nil {
		return fmt.Errorf("opening state database: %w", err)
	}
	defer func() { _ = db.Close() }()

	recs, err := db.RecentBooks(limit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		_, _ = fmt.Fprintln(w, "no saved books")
		return nil
	}
	for _, rec := range recs {
		_, _ = fmt.Fprintf(w, "%s  %4d  %s  %s\n",
			rec.UpdatedAt.Local().Format("2006-01-02 15:04"), rec.Position, rec.Title, rec.SourcePath)
	}
	return nil
}

// forget removes everything epubread keeps about a book: its reading state
// and its extracted archive.
func forget(w io.Writer, opts cliOptions) error {
	data, err := os.ReadFile(opts.BookPath)
	if err != nil {
		return fmt.Errorf("reading book: %w", err)
	}
	key := cache.Key(data)

	db, err := library.OpenOrCreate(opts.Config.DatabasePath())
	if err != nil {
		return fmt.Errorf("opening state database: %w", err)
	}
	defer func() { _ = db.Close() }()
	if err := db.DeleteState(key); err != nil {
		return err
	}

	store, err := cache.Open(opts.Config.Cache.Dir)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	if err := store.Remove(key); err != nil {
		return err
	}

	opts.Logger.Debug("forgot book", "key", key, "path", opts.BookPath)
	_, _ = fmt.Fprintf(w, "forgot %s\n", opts.BookPath)
	return nil
}

func printInfo(w io.Writer, s *navigation.Session) error {
	book := s.Book()
	_, _ = fmt.Fprintf(w, "Title:    %s\n", book.Title)
	for _, c := range book.Metadata.Creators {
		if c.Role != "" {
			_, _ = fmt.Fprintf(w, "Creator:  %s (%s)\n", c.Name, c.Role)
		} else {
			_, _ = fmt.Fprintf(w, "Creator:  %s\n", c.Name)
		}
	}
	if book.Metadata.Language != "" {
		_, _ = fmt.Fprintf(w, "Language: %s\n", book.Metadata.Language)
	}
	_, _ = fmt.Fprintf(w, "Package:  %s\n", book.PackagePath)
	if cover := book.DetectCover(); cover != nil {
		_, _ = fmt.Fprintf(w, "Cover:    %s (%s)\n", cover.Href, cover.DetectionMethod)
	}
	_, _ = fmt.Fprintf(w, "Spine:    %d items\n", s.Len())
	for i := 0; i < s.Len(); i++ {
		p, err := s.PathFor(i)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "%4d  %s\n", i, p)
	}
	return nil
}

func printResolve(w io.Writer, s *navigation.Session, link string) error {
	pos, ok := s.Resolve(link)
	if !ok {
		_, _ = fmt.Fprintln(w, "not part of the book")
		return nil
	}
	p, err := s.PathFor(pos)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "%d  %s\n", pos, p)
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, epub.ErrMalformedArchive) || errors.Is(err, epub.ErrMalformedPackage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
