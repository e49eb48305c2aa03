package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gear6io/ferret/client/config"
	ferrors "github.com/gear6io/ferret/pkg/errors"
	"github.com/gear6io/ferret/pkg/sdk"
)

func main() {
	logger := setupLogger()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")
		os.Exit(0)
	}()

	var serverAddr string
	var username string
	var password string
	var database string
	var askPassword bool

	rootCmd := &cobra.Command{
		Use:   "ferret-client",
		Short: "Database client for connecting to MySQL-compatible servers",
		Long: `ferret-client provides a command-line interface for connecting to
MySQL-compatible servers over the native wire protocol.

Examples:
ferret-client query "SELECT * FROM my_table"
ferret-client ping
ferret-client --server localhost:3306 --user root query "SHOW TABLES"`,
	}

	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "", "server address (host:port)")
	rootCmd.PersistentFlags().StringVar(&username, "user", "", "username")
	rootCmd.PersistentFlags().StringVar(&password, "password", "", "password")
	rootCmd.PersistentFlags().StringVar(&database, "database", "", "database name")
	rootCmd.PersistentFlags().BoolVar(&askPassword, "ask-password", false, "prompt for password")

	cfg, err := config.Load()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.DefaultConfig()
	}

	newClient := func() (*sdk.Client, error) {
		addr := cfg.Addr()
		if serverAddr != "" {
			addr = serverAddr
		}
		auth := sdk.Auth{
			Username: cfg.Auth.Username,
			Password: cfg.Auth.Password,
			Database: cfg.Database.Name,
		}
		if username != "" {
			auth.Username = username
		}
		if password != "" {
			auth.Password = password
		}
		if database != "" {
			auth.Database = database
		}
		if askPassword {
			fmt.Fprint(os.Stderr, "Password: ")
			secret, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return nil, err
			}
			auth.Password = string(secret)
		}

		return sdk.NewClient(&sdk.Options{
			Addr:        []string{addr},
			Auth:        auth,
			DialTimeout: cfg.Server.DialTimeout,
			ReadTimeout: cfg.Server.ReadTimeout,
		})
	}

	rootCmd.AddCommand(
		createPingCommand(newClient, logger),
		createQueryCommand(newClient, logger),
	)

	if err := rootCmd.Execute(); err != nil {
		logger.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func setupLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stderr).With().
		Timestamp().
		Str("component", "ferret-client").
		Logger()

	return logger
}

func createPingCommand(newClient func() (*sdk.Client, error), logger zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check connectivity to the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			defer client.Close()

			start := time.Now()
			if err := client.Ping(context.Background()); err != nil {
				return describeError(err)
			}

			pterm.Success.Printfln("Server responded in %v", time.Since(start))
			return nil
		},
	}
}

func createQueryCommand(newClient func() (*sdk.Client, error), logger zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "query [SQL]",
		Short: "Execute a SQL query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			defer client.Close()

			rows, err := client.Query(context.Background(), args[0])
			if err != nil {
				logger.Debug().Str("detail", ferrors.FormatError(err)).Msg("Query failed")
				return describeError(err)
			}
			defer rows.Close()

			return displayRows(rows)
		},
	}
}

// describeError categorizes a client error for the terminal user by its
// taxonomy identifier.
func describeError(err error) error {
	switch ferrors.IdentifierOf(err) {
	case "invalidQuery":
		return fmt.Errorf("server error: %s", err.(*ferrors.Error).Reason())
	case "invalidCredentials":
		return fmt.Errorf("authentication failed: check --user and --password")
	case "connectionInUse":
		return fmt.Errorf("connection busy: another operation is in flight")
	case "unsupported":
		return fmt.Errorf("server requested a feature this client does not implement")
	case "":
		return err
	default:
		return fmt.Errorf("protocol error (%s): %v", ferrors.IdentifierOf(err), err)
	}
}

// displayRows renders a resultset as a terminal table.
func displayRows(rows *sdk.Rows) error {
	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	if len(cols) == 0 {
		pterm.Success.Println("Query executed successfully (no results)")
		return nil
	}

	table := pterm.TableData{cols}
	count := 0
	for rows.Next() {
		values := make([]interface{}, len(cols))
		dests := make([]interface{}, len(cols))
		for i := range values {
			dests[i] = &values[i]
		}
		if err := rows.Scan(dests...); err != nil {
			return err
		}

		cells := make([]string, len(cols))
		for i, v := range values {
			if v == nil {
				cells[i] = "NULL"
			} else {
				cells[i] = fmt.Sprintf("%v", v)
			}
		}
		table = append(table, cells)
		count++
	}

	if err := pterm.DefaultTable.WithHasHeader().WithData(table).Render(); err != nil {
		return err
	}
	pterm.Info.Printfln("%d row(s)", count)
	return nil
}
