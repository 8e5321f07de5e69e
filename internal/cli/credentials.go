package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/vrceventbot/vrceventbot/internal/errors"
	"github.com/vrceventbot/vrceventbot/internal/vault"
)

var credentialsCmd = &cobra.Command{
	Use:     "credentials",
	Aliases: []string{"creds"},
	Short:   "List or forget stored credential records",
}

var credentialsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List Discord users with a stored record",
	Long: `List every Discord user with a stored credential record and whether the
record still opens with the current secret. Nothing is sent to VRChat and
no credential field is printed.`,
	RunE: runCredentialsList,
}

var credentialsForgetCmd = &cobra.Command{
	Use:   "forget <discord-user-id>",
	Short: "Delete a user's stored record",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredentialsForget,
}

func init() {
	credentialsCmd.AddCommand(credentialsListCmd, credentialsForgetCmd)
	RootCmd.AddCommand(credentialsCmd)
}

// Record states reported by credentials list.
const (
	recordOK       = "ok"
	recordSealed   = "unreadable"
	recordNoSecret = "no_secret"
)

// CredentialInfo describes one stored record.
type CredentialInfo struct {
	UserID    string    `json:"user_id"`
	UpdatedAt time.Time `json:"updated_at"`
	State     string    `json:"state"`
}

func runCredentialsList(cmd *cobra.Command, args []string) error {
	_, st, records, err := openOffline()
	if err != nil {
		return err
	}
	defer st.Close()
	ctx := cmd.Context()

	secrets := vault.NewSecretManager(st.Settings())
	var creds *vault.CredentialStore
	if ok, err := secrets.Exists(); err != nil {
		return err
	} else if ok {
		secret, err := secrets.GetOrCreate()
		if err != nil {
			return err
		}
		cipher, err := vault.NewCipher(secret)
		if err != nil {
			return err
		}
		// Open never talks to the provider, so no session factory is needed.
		creds = vault.NewCredentialStore(records, cipher, nil)
	}

	users, err := records.ListCredentialUsers(ctx)
	if err != nil {
		return err
	}

	infos := make([]CredentialInfo, 0, len(users))
	for _, userID := range users {
		info := CredentialInfo{UserID: userID, State: recordNoSecret}
		if creds != nil {
			bundle, err := creds.Open(ctx, userID)
			switch {
			case err == nil:
				info.State = recordOK
				info.UpdatedAt = bundle.UpdatedAt
			case errors.IsCrypto(err):
				info.State = recordSealed
			case errors.IsNotFound(err):
				// deleted since the listing
				continue
			default:
				return err
			}
		}
		infos = append(infos, info)
	}

	return printCredentials(cmd, infos)
}

func printCredentials(cmd *cobra.Command, infos []CredentialInfo) error {
	out := cmd.OutOrStdout()
	if globalFlags.JSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(infos)
	}
	if len(infos) == 0 {
		fmt.Fprintln(out, "No stored credentials.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DISCORD USER\tSTATE\tUPDATED")
	for _, info := range infos {
		updated := "-"
		if !info.UpdatedAt.IsZero() {
			updated = info.UpdatedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", info.UserID, info.State, updated)
	}
	return w.Flush()
}

func runCredentialsForget(cmd *cobra.Command, args []string) error {
	_, st, records, err := openOffline()
	if err != nil {
		return err
	}
	defer st.Close()

	removed, err := records.DeleteCredentials(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if !removed {
		fmt.Fprintf(cmd.OutOrStdout(), "No stored credentials for %s\n", args[0])
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Forgot credentials for %s\n", args[0])
	return nil
}
