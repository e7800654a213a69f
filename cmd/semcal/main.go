package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"semcal/internal/academic"
	"semcal/internal/config"
	"semcal/internal/date"
	"semcal/internal/ics"
	appLog "semcal/internal/log"
	"semcal/internal/scheduler"
	"semcal/internal/store"
	"semcal/internal/tasks"
	"semcal/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	year       int
	user       string
	print      bool
	once       bool
	accessLog  bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if err := conf.ApplyEnv(); err != nil {
		appLog.Error("failed to apply environment", err)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.year > 0 {
		conf.AcademicYear = flags.year
	}
	if flags.user != "" {
		conf.DefaultUser = flags.user
	}
	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("semcal starting",
		"listen", conf.Listen,
		"storage", conf.Storage.Driver,
		"academic_year", conf.AcademicYear,
		"ics_count", len(conf.ICS),
		"export_cron", conf.Export.Cron,
		"print", flags.print,
		"once", flags.once,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, flags); err != nil {
		appLog.Error("semcal failed", err)
		os.Exit(1)
	}
	appLog.Info("semcal exiting")
}

func run(ctx context.Context, conf *config.Config, flags flagConfig) error {
	st, closeStore, err := openStore(conf)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := tasks.NewService(st)
	sess := store.Session{UserID: conf.DefaultUser}
	if _, err := svc.Load(ctx, sess); err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}

	feeds := ics.NewFeeds(ics.NewFetcher(conf.CacheDir, nil), feedSources(conf), time.Local)
	if err := feeds.Refresh(ctx); err != nil {
		appLog.Warn("initial feed refresh incomplete", "err", err)
	}

	exportOpts := scheduler.ExportOptions{
		Spec:    conf.Export.Cron,
		Dir:     conf.Export.Dir,
		Name:    conf.Export.Name,
		Session: sess,
		Year:    conf.AcademicYear,
	}

	if flags.print {
		return printNow(ctx, conf, svc, feeds, sess)
	}
	if flags.once {
		_, err := scheduler.ExportOnce(ctx, svc, exportOpts)
		return err
	}

	sched := scheduler.New(time.Local)
	if err := sched.Add(scheduler.ExportJob(svc, exportOpts)); err != nil {
		return err
	}
	if len(conf.ICS) > 0 {
		if err := sched.Add(scheduler.RefreshJob(feeds, conf.RefreshCron)); err != nil {
			return err
		}
	}
	sched.Start(ctx)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sched.Stop(stopCtx)
	}()

	srv := web.NewServer(web.Options{
		Config:    conf,
		Tasks:     svc,
		Feeds:     feeds,
		AccessLog: accessLogWriter(flags.accessLog),
	})
	return srv.Run(ctx)
}

func openStore(conf *config.Config) (store.Store, func(), error) {
	noop := func() {}
	switch conf.Storage.Driver {
	case config.DriverMemory:
		return store.NewMemory(), noop, nil
	case config.DriverFile:
		st, err := store.NewFile(conf.Storage.Path)
		return st, noop, err
	case config.DriverPostgres:
		pg, err := store.OpenPostgres(store.PostgresConfig{
			DSN:          conf.Storage.DSN,
			AutoMigrate:  conf.Storage.AutoMigrate,
			QueryTimeout: conf.QueryTimeout(),
		})
		if err != nil {
			return nil, noop, err
		}
		return pg, func() {
			if err := pg.Close(); err != nil {
				appLog.Error("close postgres", err)
			}
		}, nil
	}
	return nil, noop, errors.New("unknown storage driver " + conf.Storage.Driver)
}

func feedSources(conf *config.Config) []ics.Source {
	sources := make([]ics.Source, 0, len(conf.ICS))
	for _, c := range conf.ICS {
		if c.URL == "" {
			continue
		}
		id := c.ID
		if id == "" {
			id = c.Name
		}
		if id == "" {
			id = c.URL
		}
		sources = append(sources, ics.Source{ID: id, Name: c.Name, URL: c.URL})
	}
	return sources
}

func printNow(ctx context.Context, conf *config.Config, svc *tasks.Service, feeds *ics.Feeds, sess store.Session) error {
	now := time.Now()
	today := date.Of(now.Year(), now.Month(), now.Day())
	ay := academic.For(today)
	if conf.AcademicYear > 0 {
		ay = academic.New(conf.AcademicYear)
	}

	start, end := date.StartOfWeek(today), date.EndOfWeek(today)
	extra, err := feeds.Tasks(start, end)
	if err != nil {
		appLog.Warn("feed tasks unavailable", "err", err)
	}
	week, err := svc.View(ctx, sess, start, end, extra...)
	if err != nil {
		return err
	}
	printCalendar(os.Stdout, ay, today, week)
	return nil
}

func accessLogWriter(enabled bool) io.Writer {
	if !enabled {
		return nil
	}
	return os.Stdout
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./semcal.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.IntVar(&cfg.year, "year", 0, "Pin the academic year (overrides config if set)")
	flag.StringVar(&cfg.user, "user", "", "Default session user (overrides config if set)")
	flag.BoolVar(&cfg.print, "print", false, "Print the academic calendar and this week's tasks, then exit")
	flag.BoolVar(&cfg.once, "once", false, "Run one ICS export and exit")
	flag.BoolVar(&cfg.accessLog, "access-log", false, "Log HTTP requests to stdout")

	flag.Parse()

	return cfg
}
