package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/semmidev/dumpvault/internal/app"
	"github.com/semmidev/dumpvault/internal/config"
	"github.com/semmidev/dumpvault/internal/infrastructure/logger"
)

var (
	authorizeTarget string
	authorizeListen string
)

var authorizeGDriveCmd = &cobra.Command{
	Use:   "authorize-gdrive",
	Short: "Obtain a Google Drive OAuth token for a gdrive target",
	Long: `Start a local callback server, print the consent URL and write the
token to the target's token_file once access is granted.`,
	RunE: runAuthorizeGDrive,
}

func init() {
	authorizeGDriveCmd.Flags().StringVar(&authorizeTarget, "target", "", "gdrive target name (default: first gdrive target)")
	authorizeGDriveCmd.Flags().StringVar(&authorizeListen, "listen", "localhost:8085", "callback server address")
}

func runAuthorizeGDrive(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := app.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	target, err := findGDriveTarget(cfg, authorizeTarget)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.App)
	if err != nil {
		return err
	}
	defer log.Close()

	redirect := fmt.Sprintf("http://%s/auth/google/callback", authorizeListen)
	authorizer, err := app.NewDriveAuthorizer(log, target.ClientSecretFile, target.TokenFile, redirect)
	if err != nil {
		return err
	}

	authorizer.Start(authorizeListen)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = authorizer.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Open this URL in a browser to authorize %s:\n\n%s\n\n", target.Name, authorizer.AuthURL())

	if err := authorizer.Wait(ctx); err != nil {
		return fmt.Errorf("authorization aborted: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Token written to %s\n", target.TokenFile)
	return nil
}

func findGDriveTarget(cfg *config.Config, name string) (config.TargetConfig, error) {
	for _, t := range cfg.Storage.Targets {
		if t.Type != "gdrive" || (name != "" && t.Name != name) {
			continue
		}
		if t.ClientSecretFile == "" || t.TokenFile == "" {
			return t, fmt.Errorf("target %s needs client_secret_file and token_file for OAuth", t.Name)
		}
		return t, nil
	}
	if name != "" {
		return config.TargetConfig{}, fmt.Errorf("no gdrive target named %q", name)
	}
	return config.TargetConfig{}, fmt.Errorf("no gdrive target configured")
}
