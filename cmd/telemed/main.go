package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medconnect/telemed/internal/config"
	"github.com/medconnect/telemed/internal/domain/availability"
	"github.com/medconnect/telemed/internal/platform/auth"
	"github.com/medconnect/telemed/internal/platform/db"
	"github.com/medconnect/telemed/internal/platform/sandbox"
	"github.com/medconnect/telemed/migrations"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "telemed",
		Short:        "Doctor availability calendar and sandbox backend",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(gridCmd())
	rootCmd.AddCommand(calendarCmd())
	rootCmd.AddCommand(doctorSlotsCmd())
	rootCmd.AddCommand(bookCmd())
	rootCmd.AddCommand(appointmentsCmd())
	return rootCmd
}

func newLogger(env string, w io.Writer) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// loadConfig loads and validates configuration and builds the logger every
// command writes through.
func loadConfig(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := newLogger(cfg.Env, cmd.ErrOrStderr())
	if err := cfg.Validate(); err != nil {
		return nil, logger, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, logger, nil
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sandbox availability backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, _ := cmd.Flags().GetBool("seed")
			seedDays, _ := cmd.Flags().GetInt("seed-days")
			return runServer(cmd, seed, seedDays)
		},
	}
	cmd.Flags().Bool("seed", false, "Populate the repository with demo availability")
	cmd.Flags().Int("seed-days", 7, "Days of demo availability to generate, starting today")
	return cmd
}

func runServer(cmd *cobra.Command, seed bool, seedDays int) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	grid, err := cfg.GridSpec()
	if err != nil {
		return err
	}

	ctx := context.Background()
	srvCfg := sandbox.ServerConfig{
		Location:  grid.Location,
		Logger:    logger,
		Issuer:    cfg.JWTIssuer,
		DevUserID: "1",
		DevRole:   auth.RoleDoctor,
	}
	if !cfg.IsDev() {
		srvCfg.SigningKey = []byte(cfg.JWTSigningKey)
	}

	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")
		srvCfg.Repo = sandbox.NewPGRepository(pool)
		srvCfg.DB = pool
	} else {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory repository")
		srvCfg.Repo = sandbox.NewMemoryRepository()
	}

	if seed {
		sc := sandbox.DefaultSeedConfig()
		sc.Days = seedDays
		today := availability.DateOf(time.Now(), grid.Location)
		res, err := sandbox.Seed(ctx, srvCfg.Repo, grid, today, sc)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		logger.Info().Strs("doctors", res.Doctors).Int("slots", res.Slots).Int("booked", res.Booked).Msg("demo calendar seeded")
	}

	e := sandbox.NewServer(srvCfg)
	addr := ":" + cfg.Port
	go func() {
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("sandbox listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run sandbox database migrations",
	}

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closeFn, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			count, err := migrator.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closeFn, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	})

	return cmd
}

func openMigrator(cmd *cobra.Command) (*db.Migrator, func(), error) {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required for migrations")
	}
	pool, err := db.NewPool(cmd.Context(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, migrations.FS), pool.Close, nil
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the sandbox backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}
			switch role {
			case auth.RoleDoctor, auth.RolePatient, auth.RoleAdmin:
			default:
				return fmt.Errorf("--role must be %s, %s or %s", auth.RoleDoctor, auth.RolePatient, auth.RoleAdmin)
			}

			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			key := cfg.JWTSigningKey
			if key == "" {
				// Development servers read claims without verifying them.
				logger.Warn().Msg("JWT_SIGNING_KEY not set, signing with a throwaway development key")
				key = "development"
			}
			tok, err := auth.Mint([]byte(key), cfg.JWTIssuer, subject, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().String("subject", "", "User id the token identifies")
	cmd.Flags().String("role", auth.RoleDoctor, "Role claim: doctor, patient or admin")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
