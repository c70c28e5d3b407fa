// Package main provides the entry point for the rsvp CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/rsvp/internal/cache"
	"github.com/dgnsrekt/rsvp/internal/document"
	"github.com/dgnsrekt/rsvp/internal/metrics"
	"github.com/dgnsrekt/rsvp/internal/playback"
	"github.com/dgnsrekt/rsvp/internal/prosody"
	"github.com/dgnsrekt/rsvp/internal/settings"
	"github.com/dgnsrekt/rsvp/internal/source"
	"github.com/dgnsrekt/rsvp/internal/store"
	"github.com/dgnsrekt/rsvp/ui"
	homedir "github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	debug      bool
	watch      bool
	cfg        settings.Config

	rootCmd = &cobra.Command{
		Use:   "rsvp FILE",
		Short: "Speed-read documents one word at a time",
		Long: paragraph(
			fmt.Sprintf("\nRead text, markdown and prosody files %s, one word at a time.", keyword("at speed")),
		),
		Example:          paragraph("rsvp book.md\nrsvp --wpm 450 notes.txt\nrsvp analyze book.md -o book.json && rsvp book.json"),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.ExactArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return []string{"md", "markdown", "txt", "json"}, cobra.ShellCompDirectiveFilterFileExt
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

func validateOptions(cmd *cobra.Command) error {
	if debug || viper.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}

	if cmd.Flag("config").Changed {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
		log.Debug("Using configuration file", "path", configFile)
	}

	c, err := settings.LoadConfigFromViper()
	if err != nil {
		return err
	}

	scope := gap.NewScope(gap.User, "rsvp")
	if c.Store.Path == "" {
		p, err := scope.DataPath("rsvp.db")
		if err != nil {
			return fmt.Errorf("unable to find data directory: %w", err)
		}
		c.Store.Path = p
	}
	if c.Store.Path, err = homedir.Expand(c.Store.Path); err != nil {
		return fmt.Errorf("unable to expand store path: %w", err)
	}
	if c.Cache.Dir != "" {
		if c.Cache.Dir, err = homedir.Expand(c.Cache.Dir); err != nil {
			return fmt.Errorf("unable to expand cache dir: %w", err)
		}
	}

	cfg = c
	return nil
}

func execute(cmd *cobra.Command, args []string) error {
	path, err := homedir.Expand(args[0])
	if err != nil {
		return fmt.Errorf("unable to expand path: %w", err)
	}
	if path, err = filepath.Abs(path); err != nil {
		return fmt.Errorf("unable to get absolute path: %w", err)
	}
	return runTUI(cmd, path)
}

func runTUI(cmd *cobra.Command, path string) error {
	ctx := cmd.Context()

	// Read environment to get debugging stuff
	uiCfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}
	uiCfg.Path = path
	uiCfg.Watch = watch

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	sett := settings.New(cfg.WPM, cfg.Sensitivity)
	if !wpmPinned(viper.GetViper(), cmd.Flag("wpm").Changed) {
		restoreWPM(cmd, st, sett)
	}

	m := metrics.New()
	if addr := viper.GetString("metrics_addr"); addr != "" {
		bound, stop, err := serveMetrics(addr, m)
		if err != nil {
			return err
		}
		defer stop()
		log.Info("serving metrics", "addr", bound)
	}

	var dc *cache.DiskCache
	if cfg.Cache.Dir != "" {
		dc, err = cache.NewDiskCache(cfg.Cache.Dir, cfg.Cache.DiskSize, cfg.Cache.Compression)
		if err != nil {
			return fmt.Errorf("unable to open segment cache: %w", err)
		}
		defer func() { _ = dc.Close() }()
	}

	open := func() (*ui.Session, error) {
		doc, err := document.Open(path, document.Options{
			PageWords: cfg.Document.PageWords,
			Cache:     dc,
			Logger:    log.Default(),
		})
		if err != nil {
			return nil, err
		}
		reader, err := doc.NewReader(sett.WPM,
			source.WithCapacity(cfg.Cache.Segments),
			source.WithSensitivity(sett.Sensitivity),
			source.WithLogger(log.Default()),
			source.WithMetrics(m),
		)
		if err != nil {
			_ = doc.Close()
			return nil, err
		}
		if err := st.UpsertBook(ctx, store.Book{
			ID:        doc.ID,
			Title:     doc.Title,
			Path:      doc.Path,
			WordCount: doc.Total(),
		}); err != nil {
			log.Warn("unable to record book", "path", doc.Path, "error", err)
		}
		return &ui.Session{Doc: doc, Reader: reader}, nil
	}

	session, err := open()
	if err != nil {
		return fmt.Errorf("unable to open %s: %w", path, err)
	}

	pos, err := st.Position(ctx, session.Doc.ID)
	if err != nil {
		log.Warn("unable to read saved position", "error", err)
	}

	sched := playback.New(
		playback.WithRate(sett),
		playback.WithStore(st),
		playback.WithPersistInterval(cfg.Playback.PersistInterval),
		playback.WithScrubFactor(cfg.Playback.ScrubFactor),
		playback.WithLookahead(cfg.Playback.Lookahead),
		playback.WithLogger(log.Default()),
		playback.WithMetrics(m),
	)
	defer func() { _ = sched.Close(context.Background()) }()

	if err := sched.Load(session.Reader, session.Doc.ID, pos.Index); err != nil {
		_ = session.Reader.Close()
		_ = session.Doc.Close()
		return fmt.Errorf("unable to read %s: %w", path, err)
	}
	log.Debug("starting reader", "path", path, "words", session.Doc.Total(), "start", pos.Index, "wpm", sett.WPM())

	// Run Bubble Tea program
	deps := ui.Deps{
		Scheduler: sched,
		Store:     st,
		Session:   session,
		Load:      open,
		Logger:    log.Default(),
	}
	if _, err := ui.NewProgram(uiCfg, deps).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}

	return nil
}

// wpmPinned reports whether the rate was chosen for this run by flag,
// config file or environment. Otherwise the last session's rate wins.
func wpmPinned(v *viper.Viper, flagChanged bool) bool {
	if flagChanged || v.InConfig("wpm") {
		return true
	}
	_, ok := os.LookupEnv("RSVP_WPM")
	return ok
}

// restoreWPM applies the rate chosen in the last session.
func restoreWPM(cmd *cobra.Command, st *store.Store, sett *settings.Settings) {
	v, err := st.Setting(cmd.Context(), settings.KeyWPM)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn("unable to read saved wpm", "error", err)
		}
		return
	}
	wpm, err := strconv.Atoi(v)
	if err != nil {
		log.Warn("ignoring saved wpm", "value", v)
		return
	}
	sett.SetWPM(wpm)
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "write debug output to the log file")
	rootCmd.PersistentFlags().IntP("wpm", "r", prosody.DefaultWPM, fmt.Sprintf("reading rate in words per minute (%d-%d)", settings.MinWPM, settings.MaxWPM))
	rootCmd.PersistentFlags().Float64("sensitivity", prosody.DefaultSensitivity, "how strongly punctuation slows the reader (0-1)")
	rootCmd.Flags().BoolVarP(&watch, "watch", "w", false, "reload the document when it changes")
	rootCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address while reading")

	// Config bindings
	_ = viper.BindPFlag("wpm", rootCmd.PersistentFlags().Lookup("wpm"))
	_ = viper.BindPFlag("sensitivity", rootCmd.PersistentFlags().Lookup("sensitivity"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("metrics_addr", rootCmd.Flags().Lookup("metrics-addr"))

	settings.SetDefaults()

	rootCmd.AddCommand(configCmd, manCmd, analyzeCmd, serveCmd, booksCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "rsvp")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "rsvp")}, dirs...)
	}

	if c := os.Getenv("RSVP_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("rsvp")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("rsvp")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		configFile = used
		return
	}

	configFile = filepath.Join(dirs[0], "rsvp.yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
