// Package migrate contains the command to perform database migrations.
package migrate

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/shardquery/shardquery/cmd/util"
	"github.com/shardquery/shardquery/pkg/storage/migrate"
)

const (
	versionFlag          = "version"
	timeoutFlag          = "timeout"
	verboseMigrationFlag = "verbose"

	versionKey = "migrate.version"
	timeoutKey = "migrate.timeout"
	verboseKey = "migrate.verbose"
)

func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database schema migrations needed for the shardquery datastores",
		Long:  `The migrate command is used to migrate the schema of the sql datastores.`,
		RunE:  runMigration,
		Args:  cobra.NoArgs,
	}

	flags := cmd.Flags()

	flags.Uint(versionFlag, 0, "the version to migrate to (if omitted the latest schema will be used)")
	flags.Duration(timeoutFlag, 1*time.Minute, "a timeout for the time it takes the migrate process to connect to the database")
	flags.Bool(verboseMigrationFlag, false, "enable verbose migration logs (default false)")

	bindings := []util.ConfigFlag{
		{Flag: versionFlag, Key: versionKey},
		{Flag: timeoutFlag, Key: timeoutKey},
		{Flag: verboseMigrationFlag, Key: verboseKey},
	}
	bindings = append(bindings, util.AddDatastoreFlags(flags)...)
	bindings = append(bindings, util.AddObservabilityFlags(flags)...)
	util.BindOnPreRun(cmd, bindings)

	return cmd
}

func runMigration(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := util.ReadConfig()
	if err != nil {
		return err
	}
	l, err := util.BuildLogger(cfg)
	if err != nil {
		return err
	}

	migrationConfig := migrate.MigrationConfig{
		Engine:        cfg.Datastore.Engine,
		URI:           cfg.Datastore.URI,
		TargetVersion: viper.GetUint(versionKey),
		Timeout:       viper.GetDuration(timeoutKey),
		Verbose:       viper.GetBool(verboseKey),
		Username:      cfg.Datastore.Username,
		Password:      cfg.Datastore.Password,
		Logger:        l,
	}

	registry := migrate.NewRegistry()
	if err := registry.RunMigrations(ctx, migrationConfig); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if cfg.Datastore.Engine == "memory" {
		return nil
	}

	version, err := registry.CurrentVersion(ctx, migrationConfig)
	if err != nil {
		return fmt.Errorf("failed to read the schema version: %w", err)
	}
	l.Info("migration done", zap.String("engine", cfg.Datastore.Engine), zap.Int64("version", version))

	return nil
}
