package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kayushkin/authprofiles"
	"github.com/spf13/cobra"
)

type app struct {
	storePath  string
	configPath string
	logLevel   string
	logFile    string
	envFile    string

	cfg     *authprofiles.Config
	store   *authprofiles.Store
	manager *authprofiles.Manager
}

func main() {
	a := &app{}
	root := &cobra.Command{
		Use:           "authprofiles",
		Short:         "LLM provider auth profiles with failover",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	root.PersistentFlags().StringVar(&a.storePath, "store", "", "auth-profiles.json path (default from config or ~/.openclaw)")
	root.PersistentFlags().StringVar(&a.configPath, "config", authprofiles.DefaultConfigPath(), "config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.logFile, "log-file", "", "write logs to a rotating file")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", "load provider env vars from a .env file")

	root.AddCommand(
		a.statusCmd(), a.addCmd(), a.removeCmd(), a.orderCmd(), a.keyCmd(),
		a.successCmd(), a.failCmd(), classifyCmd(), a.pingCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (a *app) load() error {
	cfg, err := authprofiles.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, file := cfg.LogLevel, cfg.LogFile
	if a.logLevel != "" {
		level = a.logLevel
	}
	if a.logFile != "" {
		file = a.logFile
	}
	if err := setupLogging(level, file); err != nil {
		return err
	}

	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	}

	if a.storePath == "" {
		a.storePath = cfg.ResolvedStorePath()
	}
	store, err := authprofiles.Open(a.storePath)
	if err != nil {
		return err
	}
	a.store = store
	a.manager = authprofiles.NewManager(store, cfg.ManagerOptions()...)
	return nil
}

func (a *app) save() error {
	return a.store.Save(a.storePath)
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show all profiles with their health",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := a.store.ProfileIDs()
			if len(ids) == 0 {
				fmt.Println("No credentials configured.")
				return nil
			}
			now := a.store.Now()
			for _, id := range ids {
				cred, _ := a.store.Profile(id)
				provider := authprofiles.ProviderOf(cred)
				creds := authprofiles.Normalize(id, cred)

				status := "valid"
				if !a.manager.IsValid(creds) {
					status = "expired"
				}
				stats, _ := a.store.UsageStats(id)
				if a.store.IsProfileInCooldown(id) {
					left := time.UnixMilli(stats.CooldownUntil).Sub(now).Round(time.Second)
					status = "cooldown " + left.String()
				}
				marker := " "
				if lg, ok := a.store.LastGood(provider); ok && lg == id {
					marker = "*"
				}
				fmt.Printf("%s %-25s  type=%-7s  provider=%-10s  key=%s  status=%s  errors=%d\n",
					marker, id, cred.Type(), provider, authprofiles.MaskKey(creds.APIKey), status, stats.ErrorCount)
			}
			return nil
		},
	}
}

func (a *app) addCmd() *cobra.Command {
	var (
		id, typ, secret, refresh, email, clientID string
		expiresIn                                 time.Duration
	)
	cmd := &cobra.Command{
		Use:   "add [provider]",
		Short: "Add or replace a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := args[0]
			if secret == "" {
				return fmt.Errorf("--secret is required")
			}
			if id == "" {
				id = provider + ":" + strings.SplitN(uuid.NewString(), "-", 2)[0]
			}
			var expires int64
			if expiresIn > 0 {
				expires = a.store.Now().Add(expiresIn).UnixMilli()
			}

			var cred authprofiles.Credential
			switch authprofiles.CredentialType(typ) {
			case authprofiles.TypeAPIKey:
				cred = &authprofiles.APIKeyCredential{Provider: provider, Key: secret, Email: email}
			case authprofiles.TypeToken:
				cred = &authprofiles.TokenCredential{Provider: provider, Token: secret, Expires: expires, Email: email}
			case authprofiles.TypeOAuth:
				cred = &authprofiles.OAuthCredential{
					Provider:     provider,
					AccessToken:  secret,
					RefreshToken: refresh,
					ExpiresAt:    expires,
					ClientID:     clientID,
					Email:        email,
				}
			default:
				return fmt.Errorf("unknown profile type %q", typ)
			}

			a.store.UpsertProfile(id, cred)
			if err := a.save(); err != nil {
				return fmt.Errorf("failed to save profile: %w", err)
			}
			fmt.Printf("✓ Saved %s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "profile id (default <provider>:<random>)")
	cmd.Flags().StringVar(&typ, "type", string(authprofiles.TypeAPIKey), "api_key, token or oauth")
	cmd.Flags().StringVar(&secret, "secret", "", "key, token or access token")
	cmd.Flags().StringVar(&refresh, "refresh", "", "oauth refresh token")
	cmd.Flags().StringVar(&clientID, "client-id", "", "oauth client id")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "token lifetime from now")
	return cmd
}

func (a *app) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [profile]",
		Short: "Delete a profile and its usage stats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.store.DeleteProfile(args[0]) {
				return fmt.Errorf("no profile %q", args[0])
			}
			return a.save()
		},
	}
}

func (a *app) orderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "order [agent] [profile...]",
		Short: "Show or set an agent's preferred profile order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agent := args[0]
			if len(args) == 1 {
				fmt.Println(strings.Join(a.store.ProfileOrder(agent), " "))
				return nil
			}
			a.store.SetProfileOrder(agent, args[1:])
			return a.save()
		},
	}
}

func (a *app) keyCmd() *cobra.Command {
	var profile, agent string
	cmd := &cobra.Command{
		Use:   "key [provider]",
		Short: "Print resolved API key to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := a.manager.ResolveKey(authprofiles.AuthConfig{Provider: args[0], ProfileID: profile, AgentID: agent})
			if err != nil {
				return err
			}
			if creds.ProfileID != "" {
				if err := a.save(); err != nil {
					return err
				}
			}
			fmt.Print(creds.APIKey)
			return nil
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "", "use exactly this profile")
	cmd.Flags().StringVar(&agent, "agent", "", "apply this agent's profile order")
	return cmd
}

func (a *app) successCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "success [profile]",
		Short: "Record a successful call for a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.manager.RecordSuccess(args[0])
			return a.save()
		},
	}
}

func (a *app) failCmd() *cobra.Command {
	var reason, message string
	cmd := &cobra.Command{
		Use:   "fail [profile]",
		Short: "Record a failed call for a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := authprofiles.FailoverReason(reason)
			if reason == "" {
				r = authprofiles.ClassifyMessage(message)
			}
			a.manager.RecordFailure(args[0], r)
			if err := a.save(); err != nil {
				return err
			}
			fmt.Printf("%s: %s, cooldown %s\n", args[0], r, a.manager.Cooldown(r.FailureReason()))
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "failover reason")
	cmd.Flags().StringVar(&message, "message", "", "upstream error message to classify")
	return cmd
}

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify [message...]",
		Short: "Classify an upstream error message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := authprofiles.ClassifyMessage(strings.Join(args, " "))
			fmt.Printf("reason=%s status=%d rotate=%t fallback=%t\n",
				r, r.HTTPStatus(), r.ShouldRotateProfile(), r.ShouldFallbackModel())
			return nil
		},
	}
}

func (a *app) pingCmd() *cobra.Command {
	var model, agent string
	var attempts int
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "ping [provider]",
		Short: "Send a tiny request, rotating profiles on failure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] != "anthropic" {
				return fmt.Errorf("unsupported provider: %s", args[0])
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var used string
			err := a.manager.Do(ctx, authprofiles.AuthConfig{Provider: args[0], AgentID: agent}, model, attempts,
				func(ctx context.Context, creds authprofiles.Credentials) error {
					used = creds.ProfileID
					client := authprofiles.AnthropicClient(creds)
					_, err := client.Messages.New(ctx, anthropic.MessageNewParams{
						Model:     anthropic.Model(model),
						MaxTokens: 16,
						Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock("ping"))},
					})
					return err
				})
			if saveErr := a.save(); saveErr != nil && err == nil {
				err = saveErr
			}
			if err != nil {
				return err
			}
			fmt.Printf("✓ %s ok\n", used)
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "claude-3-5-haiku-latest", "model to call")
	cmd.Flags().StringVar(&agent, "agent", "", "apply this agent's profile order")
	cmd.Flags().IntVar(&attempts, "attempts", 3, "maximum profiles to try")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall timeout")
	return cmd
}
