package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/asaskevich/govalidator"
	"github.com/gofrs/uuid"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Tarick/servare/internal/application/server"
	"github.com/Tarick/servare/internal/authentication"
	"github.com/Tarick/servare/internal/config"
	"github.com/Tarick/servare/internal/entity"
	"github.com/Tarick/servare/internal/fetcher"
	"github.com/Tarick/servare/internal/job"
	"github.com/Tarick/servare/internal/logger/zaplogger"
	"github.com/Tarick/servare/internal/parsepool"
	"github.com/Tarick/servare/internal/repository/postgresql"
	"github.com/Tarick/servare/internal/rungroup"
	"github.com/Tarick/servare/internal/sessions"
	"github.com/Tarick/servare/internal/tem"
	"github.com/Tarick/servare/internal/tracing"
	"github.com/Tarick/servare/internal/version"
)

func main() {
	var (
		cfgFile    string
		adminEmail string
	)
	// rootCmd represents the base command when called without any subcommands
	rootCmd := &cobra.Command{
		Use:   "servare",
		Short: "Servare feed reader service",
		Long:  `Feed reader service: web UI, feed refresh and favicon jobs over PostgreSQL`,
	}
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the service",
		Long:  `Start the HTTP server, the job runner and the session cleaner, stop them together on INT/TERM`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cfgFile)
		},
	}
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  `Apply pending schema migrations to the configured database`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cfgFile)
		},
	}
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts",
	}
	setupAdminCmd := &cobra.Command{
		Use:   "setup-admin",
		Short: "Create an admin account",
		Long:  `Create an account with the given email, the password is prompted on stdin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return setupAdmin(cfgFile, adminEmail)
		},
	}
	setupAdminCmd.Flags().StringVar(&adminEmail, "email", "", "email of the account to create")
	setupAdminCmd.MarkFlagRequired("email")
	usersCmd.AddCommand(setupAdminCmd)
	// Version command, attached to root
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number of application",
		Long:  `Software version`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Servare version:", version.Version, "build on:", version.BuildTime)
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./servare.yaml, then /etc/servare/servare.yaml)")
	rootCmd.AddCommand(serveCmd, migrateCmd, usersCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// serve wires every component and runs them under one run group
func serve(cfgFile string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("FATAL: failure reading configuration, %v", err)
	}
	// Init logging
	zapLogger, err := zaplogger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("FATAL: failure configuring logging, %v", err)
	}
	logger := zapLogger.Sugar()
	defer logger.Sync()

	// Init tracing
	tracer, tracerCloser, err := tracing.New(cfg.Tracing, logger)
	if err != nil {
		return fmt.Errorf("FATAL: cannot init tracing, %v", err)
	}
	defer tracerCloser.Close()

	// Two pools: web handlers and the job runner don't compete for
	// connections
	webRepository, err := postgresql.New(&cfg.Database, postgresql.NewZapLogger(zapLogger), tracer)
	if err != nil {
		return fmt.Errorf("FATAL: failure creating database connection, %v", err)
	}
	defer webRepository.Close()
	jobsRepository, err := postgresql.New(&cfg.Database, postgresql.NewZapLogger(zapLogger), tracer)
	if err != nil {
		return fmt.Errorf("FATAL: failure creating jobs database connection, %v", err)
	}
	defer jobsRepository.Close()

	fetcherClient, err := fetcher.New(cfg.Fetcher, tracer)
	if err != nil {
		return fmt.Errorf("FATAL: failure creating fetcher client, %v", err)
	}
	emailClient, err := tem.New(cfg.Email, tracer)
	if err != nil {
		return fmt.Errorf("FATAL: failure creating email client, %v", err)
	}
	parsePool := parsepool.New()
	sessionManager := sessions.NewManager(cfg.Session, webRepository)

	handler, err := server.NewHandler(cfg.Application, logger, tracer, webRepository, sessionManager, fetcherClient, parsePool, emailClient)
	if err != nil {
		return fmt.Errorf("FATAL: failure creating http handler, %v", err)
	}
	httpServer := server.New(cfg.Application, logger, handler)
	jobRunner := job.New(cfg.Jobs, jobsRepository, fetcherClient, parsePool, logger, tracer)

	group := rungroup.New(logger)
	group.Add("http server", httpServer.Run)
	group.Add("job runner", jobRunner.Run)
	if cfg.Session.CleanupEnabled {
		group.Add("session cleaner", sessions.NewCleaner(cfg.Session, webRepository, logger).Run)
	}
	return group.Run(context.Background())
}

func migrate(cfgFile string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("FATAL: failure reading configuration, %v", err)
	}
	if err := postgresql.MigrateUp(&cfg.Database); err != nil {
		return fmt.Errorf("FATAL: failure applying migrations, %v", err)
	}
	fmt.Println("Migrations applied")
	return nil
}

// setupAdmin creates an account from the command line, the password never
// appears in argv or shell history
func setupAdmin(cfgFile, email string) error {
	if !govalidator.IsEmail(email) {
		return fmt.Errorf("FATAL: %q is not a valid email", email)
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("FATAL: failure reading configuration, %v", err)
	}
	zapLogger, err := zaplogger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("FATAL: failure configuring logging, %v", err)
	}
	logger := zapLogger.Sugar()
	defer logger.Sync()

	password, err := readPassword()
	if err != nil {
		return fmt.Errorf("FATAL: failure reading password, %v", err)
	}
	passwordHash, err := authentication.HashPassword(password)
	if err != nil {
		return fmt.Errorf("FATAL: failure hashing password, %v", err)
	}

	// One-shot command, spinning up the tracing reporter isn't worth it
	repository, err := postgresql.New(&cfg.Database, postgresql.NewZapLogger(zapLogger), opentracing.NoopTracer{})
	if err != nil {
		return fmt.Errorf("FATAL: failure creating database connection, %v", err)
	}
	defer repository.Close()

	user := &entity.User{
		ID:           uuid.Must(uuid.NewV4()),
		Email:        email,
		PasswordHash: passwordHash,
	}
	if err := repository.CreateUser(context.Background(), user); err != nil {
		return fmt.Errorf("FATAL: failure creating user, %v", err)
	}
	fmt.Println("Created user", user.Email, "with id", user.ID)
	return nil
}

// readPassword prompts with echo disabled on a terminal and falls back to
// a plain line read for piped input
func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Print("Password: ")
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		fmt.Print("Repeat password: ")
		repeat, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		if string(raw) != string(repeat) {
			return "", fmt.Errorf("passwords don't match")
		}
		if len(raw) == 0 {
			return "", fmt.Errorf("password must not be empty")
		}
		return string(raw), nil
	}
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("no password on stdin")
	}
	password := scanner.Text()
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	return password, nil
}
