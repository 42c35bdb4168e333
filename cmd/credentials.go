package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vicentefritzen/petsys-migracao/config"
	"github.com/vicentefritzen/petsys-migracao/credentials"
)

// Credentials command flags
var (
	credentialsReveal bool
)

// CredentialsCommandDeps holds the dependencies for credentials commands.
type CredentialsCommandDeps struct {
	Config     *config.Config
	LoadConfig func() (*config.Config, error)
	Store      func(*config.Config) *credentials.Store
	// ReadSecret prompts for a password without echo.
	ReadSecret func(prompt string, out io.Writer, in io.Reader) (string, error)
}

// DefaultCredentialsDeps returns the default dependencies for production use.
func DefaultCredentialsDeps() *CredentialsCommandDeps {
	return &CredentialsCommandDeps{
		LoadConfig: config.LoadConfig,
		Store:      credentialStore,
		ReadSecret: readSecret,
	}
}

// readSecret reads a password with echo disabled, falling back to a plain
// line read when stdin is not a terminal.
func readSecret(prompt string, out io.Writer, in io.Reader) (string, error) {
	fmt.Fprint(out, prompt)
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// NewCredentialsCommand creates the root credentials command with all subcommands.
func NewCredentialsCommand(deps *CredentialsCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultCredentialsDeps()
	}

	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage database passwords in the system keyring",
		Long: `Store database passwords in the operating system keyring so they never sit
in the config file or shell history.

Passwords are kept per tenant. A password set in the environment (or in a
database URL) always wins over the stored one.

Targets:
  legacy-db   legacy database
  dest-db     destination database`,
		Aliases: []string{"creds"},
	}

	cmd.AddCommand(newCredentialsSetCommand(deps))
	cmd.AddCommand(newCredentialsShowCommand(deps))
	cmd.AddCommand(newCredentialsDeleteCommand(deps))

	return cmd
}

// newCredentialsSetCommand creates the 'credentials set' subcommand.
func newCredentialsSetCommand(deps *CredentialsCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:       "set <target>",
		Short:     "Store the password for a database",
		Args:      cobra.ExactArgs(1),
		ValidArgs: credentials.Targets(),
		Example: `  petmig credentials set legacy-db
  echo "$DEST_PASSWORD" | petmig credentials set dest-db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCredentialsSet(cmd.OutOrStdout(), cmd.InOrStdin(), deps, args[0])
		},
	}
}

// newCredentialsShowCommand creates the 'credentials show' subcommand.
func newCredentialsShowCommand(deps *CredentialsCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show which passwords are stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCredentialsShow(cmd.OutOrStdout(), deps)
		},
	}

	cmd.Flags().BoolVar(&credentialsReveal, "reveal", false, "Print passwords in clear text")

	return cmd
}

// newCredentialsDeleteCommand creates the 'credentials delete' subcommand.
func newCredentialsDeleteCommand(deps *CredentialsCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:       "delete <target>",
		Short:     "Remove the stored password for a database",
		Args:      cobra.ExactArgs(1),
		ValidArgs: credentials.Targets(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCredentialsDelete(cmd.OutOrStdout(), deps, args[0])
		},
	}
}

func loadCredentialStore(deps *CredentialsCommandDeps) (*config.Config, *credentials.Store, error) {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}
	deps.Config = cfg
	return cfg, deps.Store(cfg), nil
}

// runCredentialsSet executes the credentials set command.
func runCredentialsSet(out io.Writer, in io.Reader, deps *CredentialsCommandDeps, target string) error {
	cfg, store, err := loadCredentialStore(deps)
	if err != nil {
		return err
	}

	password, err := deps.ReadSecret(fmt.Sprintf("Password for %s: ", target), out, in)
	if err != nil {
		return err
	}
	if err := store.SetPassword(target, password); err != nil {
		return err
	}

	fmt.Fprintf(out, "Stored %s password for tenant %q in %s.\n", target, cfg.TenantID, credentials.Backend())
	return nil
}

// credentialView is the JSON shape of one stored password.
type credentialView struct {
	Target   string `json:"target"`
	Stored   bool   `json:"stored"`
	Password string `json:"password,omitempty"`
}

// runCredentialsShow executes the credentials show command.
func runCredentialsShow(out io.Writer, deps *CredentialsCommandDeps) error {
	cfg, store, err := loadCredentialStore(deps)
	if err != nil {
		return err
	}

	statuses, err := store.Statuses()
	if err != nil {
		return err
	}

	views := make([]credentialView, 0, len(statuses))
	for _, s := range statuses {
		v := credentialView{Target: s.Target, Stored: s.Stored, Password: s.Masked}
		if s.Stored && credentialsReveal {
			secret, err := store.Password(s.Target)
			if err != nil {
				return err
			}
			v.Password = secret
		}
		views = append(views, v)
	}

	if cfg.OutputFormat == config.OutputFormatJSON {
		return writeJSON(out, map[string]any{
			"tenant_id":   cfg.TenantID,
			"backend":     credentials.Backend(),
			"credentials": views,
		})
	}

	fmt.Fprintf(out, "Backend: %s\n", credentials.Backend())
	fmt.Fprintf(out, "Tenant:  %s\n\n", cfg.TenantID)
	for _, v := range views {
		value := "(not set)"
		if v.Stored {
			value = v.Password
		}
		fmt.Fprintf(out, "  %-10s %s\n", v.Target, value)
	}
	return nil
}

// runCredentialsDelete executes the credentials delete command.
func runCredentialsDelete(out io.Writer, deps *CredentialsCommandDeps, target string) error {
	cfg, store, err := loadCredentialStore(deps)
	if err != nil {
		return err
	}
	if err := store.DeletePassword(target); err != nil {
		return err
	}
	fmt.Fprintf(out, "Removed %s password for tenant %q.\n", target, cfg.TenantID)
	return nil
}
