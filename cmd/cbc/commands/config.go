package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fivetwenty-io/cbc-client/internal/auth"
	"github.com/fivetwenty-io/cbc-client/internal/constants"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// ProfileView is the printable form of one credentials profile.
type ProfileView struct {
	Profile           string `json:"profile"             yaml:"profile"`
	File              string `json:"file"                yaml:"file"`
	URL               string `json:"url"                 yaml:"url"`
	OrgKey            string `json:"org_key"             yaml:"org_key"`
	Token             string `json:"token"               yaml:"token"`
	SSLVerify         string `json:"ssl_verify"          yaml:"ssl_verify"`
	Proxy             string `json:"proxy,omitempty"     yaml:"proxy,omitempty"`
	IgnoreSystemProxy bool   `json:"ignore_system_proxy" yaml:"ignore_system_proxy"`
}

// settable maps config keys to a parser for their value.
var settable = map[string]func(string) (any, error){
	"url":     func(v string) (any, error) { return strings.TrimSuffix(strings.TrimSpace(v), "/"), nil },
	"org_key": func(v string) (any, error) { return strings.TrimSpace(v), nil },
	"proxy":   func(v string) (any, error) { return strings.TrimSpace(v), nil },
	"ssl_verify": func(v string) (any, error) {
		return strconv.ParseBool(v)
	},
	"ignore_system_proxy": func(v string) (any, error) {
		return strconv.ParseBool(v)
	},
}

// NewConfigCommand creates the config command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage credential profiles",
		Long:  "Show and edit the profiles stored in the credentials file",
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigSetCommand())
	cmd.AddCommand(newConfigSetTokenCommand())

	return cmd
}

func currentProfile() string {
	if profile := viper.GetString("profile"); profile != "" {
		return profile
	}

	return constants.DefaultProfile
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current profile",
		Long:  "Display the selected credentials profile with the API secret masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := auth.NewFileProvider(viper.GetString("credentials-file"), currentProfile())

			creds, err := provider.Credentials(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to read profile: %w", err)
			}

			if creds.URL == "" && creds.OrgKey == "" && creds.Token() == "" {
				return fmt.Errorf("%w: %s in %s", constants.ErrNoProfileConfigured, currentProfile(), provider.Path())
			}

			view := profileView(currentProfile(), provider.Path(), creds)

			return render(cmd.OutOrStdout(), view, func(table *tablewriter.Table) {
				table.Header("Property", "Value")
				_ = table.Append("Profile", view.Profile)
				_ = table.Append("File", view.File)
				_ = table.Append("URL", orNA(view.URL))
				_ = table.Append("Org Key", orNA(view.OrgKey))
				_ = table.Append("Token", orNA(view.Token))
				_ = table.Append("SSL Verify", view.SSLVerify)

				if view.Proxy != "" {
					_ = table.Append("Proxy", view.Proxy)
				}

				_ = table.Append("Ignore System Proxy", yesNo(view.IgnoreSystemProxy))
			})
		},
	}
}

func profileView(profile, path string, creds *auth.Credentials) ProfileView {
	view := ProfileView{
		Profile:           profile,
		File:              path,
		URL:               creds.URL,
		OrgKey:            creds.OrgKey,
		SSLVerify:         "true",
		Proxy:             creds.Proxy,
		IgnoreSystemProxy: creds.IgnoreSystemProxy,
	}

	if creds.APIID != "" {
		view.Token = Masked + "/" + creds.APIID
	}

	if creds.SSLVerify != nil {
		view.SSLVerify = strconv.FormatBool(*creds.SSLVerify)
	}

	return view
}

func newConfigSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a profile value",
		Long: `Set one value of the selected profile.

Keys: url, org_key, ssl_verify, proxy, ignore_system_proxy.
Use 'cbc config set-token' for the API key.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.ToLower(args[0])

			parse, ok := settable[key]
			if !ok {
				return fmt.Errorf("%w: %s", constants.ErrUnknownConfigKey, key)
			}

			value, err := parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}

			persister := auth.NewFilePersister(viper.GetString("credentials-file"))

			err = persister.SetValue(currentProfile(), key, value)
			if err != nil {
				return fmt.Errorf("failed to save profile: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Set %s for profile %s\n", key, currentProfile())

			return nil
		},
	}
}

func newConfigSetTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set-token [TOKEN]",
		Short: "Store the API key",
		Long: `Store the "<api secret>/<api id>" API key in the selected profile.

Without an argument the key is read from the terminal without echo, or
from the first line of stdin when it is not a terminal.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string

			if len(args) == 1 {
				token = args[0]
			} else {
				var err error

				token, err = readToken(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
			}

			token = strings.TrimSpace(token)
			if token == "" {
				return ErrEmptyToken
			}

			persister := auth.NewFilePersister(viper.GetString("credentials-file"))
			manager := auth.NewConfigTokenManager(auth.NewAPIKeyTokenManager("", ""), persister, currentProfile())

			err := manager.Persist(token)
			if err != nil {
				return fmt.Errorf("failed to store token: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Token stored for profile %s\n", currentProfile())

			return nil
		},
	}
}

// readToken prompts on a terminal, otherwise reads one line of in.
func readToken(in io.Reader, prompt io.Writer) (string, error) {
	if file, ok := in.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		_, err := io.WriteString(prompt, "API token (<secret>/<id>): ")
		if err != nil {
			return "", fmt.Errorf("failed to write prompt: %w", err)
		}

		tokenBytes, err := term.ReadPassword(int(file.Fd()))
		if err != nil {
			return "", fmt.Errorf("failed to read token: %w", err)
		}

		_, _ = io.WriteString(prompt, "\n")

		return string(tokenBytes), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read token: %w", err)
	}

	return line, nil
}
