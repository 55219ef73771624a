package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"lawdesk.org/internal/auth"
	"lawdesk.org/internal/migrate"
	"lawdesk.org/internal/obs"
	"lawdesk.org/internal/store/pg"
)

type options struct {
	dsn     string
	timeout time.Duration
}

func main() {
	opts := &options{}
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the lawdesk PostgreSQL schema",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if opts.dsn == "" {
				return errors.New("missing DSN: provide via --dsn or LAWDESK_DATABASE_DSN")
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.dsn, "dsn", os.Getenv("LAWDESK_DATABASE_DSN"), "PostgreSQL DSN")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall deadline")

	root.AddCommand(
		managerCommand(opts, "up", "Apply pending migrations", func(ctx context.Context, m *migrate.Manager, log *logrus.Entry) error {
			applied, err := m.Up(ctx)
			if err != nil {
				return err
			}
			log.WithField("applied", applied).Info("migrations_applied")
			return nil
		}),
		managerCommand(opts, "down", "Roll back the latest migration", func(ctx context.Context, m *migrate.Manager, log *logrus.Entry) error {
			name, err := m.Down(ctx)
			if err != nil {
				return err
			}
			log.WithField("migration", name).Info("migration_rolled_back")
			return nil
		}),
		managerCommand(opts, "seed", "Load seed data", func(ctx context.Context, m *migrate.Manager, log *logrus.Entry) error {
			applied, err := m.Seed(ctx)
			if err != nil {
				return err
			}
			log.WithField("applied", applied).Info("seeds_applied")
			return nil
		}),
		managerCommand(opts, "status", "List migrations and whether they are applied", func(ctx context.Context, m *migrate.Manager, _ *logrus.Entry) error {
			states, err := m.Status(ctx)
			if err != nil {
				return err
			}
			for _, st := range states {
				mark := " "
				if st.Applied {
					mark = "x"
				}
				fmt.Printf("[%s] %s\n", mark, st.Name)
			}
			return nil
		}),
		createAdminCommand(opts),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		obs.Logger().WithError(err).Error("migrate_failed")
		os.Exit(1)
	}
}

func managerCommand(opts *options, use, short string, fn func(context.Context, *migrate.Manager, *logrus.Entry) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			db, err := pg.Open(opts.dsn, pg.PoolConfig{MaxOpenConns: 2})
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()
			return fn(ctx, migrate.NewManager(db.DB()), obs.Component("migrate").WithField("command", use))
		},
	}
}

// createAdminCommand bootstraps the first administrator; self-registration
// never grants the admin role.
func createAdminCommand(opts *options) *cobra.Command {
	var (
		in   auth.NewUser
		cost int
	)
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if in.Password == "" {
				in.Password = os.Getenv("LAWDESK_ADMIN_PASSWORD")
			}
			in.Role = auth.RoleAdmin

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			db, err := pg.Open(opts.dsn, pg.PoolConfig{MaxOpenConns: 2})
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()

			// no tokens are issued here, any secret will do
			tokens, err := auth.NewTokenService(rand.Text())
			if err != nil {
				return err
			}
			svc, err := auth.NewService(db.AuthStores(), tokens, auth.WithHasher(auth.NewHasher(cost)))
			if err != nil {
				return err
			}
			profile, err := svc.CreateUser(ctx, in)
			if err != nil {
				return err
			}
			obs.Component("migrate").WithFields(logrus.Fields{
				"user_id": profile.ID,
				"email":   profile.Email,
			}).Info("admin_created")
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Email, "email", "", "admin email")
	f.StringVar(&in.Password, "password", "", "admin password (or LAWDESK_ADMIN_PASSWORD)")
	f.StringVar(&in.DNI, "dni", "", "national identity number")
	f.StringVar(&in.Name, "name", "", "first name")
	f.StringVar(&in.Surname, "surname", "", "last name")
	f.StringVar(&in.Phone, "phone", "", "phone number")
	f.IntVar(&cost, "bcrypt-cost", 10, "bcrypt cost")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("dni")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
