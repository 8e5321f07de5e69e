package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vrceventbot/vrceventbot/internal/vault"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Create or inspect the credential sealing secret",
	Long: `The secret seals every stored credential record. It is generated once
and kept in the settings table of the database. Losing or replacing it
makes every stored record unreadable, and users will have to /login again.`,
}

var secretInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the secret if it does not exist yet",
	RunE:  runSecretInit,
}

var secretFingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Print a fingerprint of the secret without revealing it",
	RunE:  runSecretFingerprint,
}

func init() {
	secretCmd.AddCommand(secretInitCmd, secretFingerprintCmd)
	RootCmd.AddCommand(secretCmd)
}

// SecretInfo is the JSON form of the secret commands' output.
type SecretInfo struct {
	Created     bool   `json:"created"`
	Fingerprint string `json:"fingerprint"`
	Database    string `json:"database"`
}

func runSecretInit(cmd *cobra.Command, args []string) error {
	_, st, _, err := openOffline()
	if err != nil {
		return err
	}
	defer st.Close()

	secrets := vault.NewSecretManager(st.Settings())
	existed, err := secrets.Exists()
	if err != nil {
		return err
	}
	secret, err := secrets.GetOrCreate()
	if err != nil {
		return err
	}

	return printSecretInfo(cmd, SecretInfo{
		Created:     !existed,
		Fingerprint: vault.Fingerprint(secret),
		Database:    st.Path(),
	})
}

func runSecretFingerprint(cmd *cobra.Command, args []string) error {
	_, st, _, err := openOffline()
	if err != nil {
		return err
	}
	defer st.Close()

	secrets := vault.NewSecretManager(st.Settings())
	ok, err := secrets.Exists()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no secret in %s; run 'vrceventbot secret init' or start the bot once", st.Path())
	}
	secret, err := secrets.GetOrCreate()
	if err != nil {
		return err
	}

	return printSecretInfo(cmd, SecretInfo{
		Fingerprint: vault.Fingerprint(secret),
		Database:    st.Path(),
	})
}

func printSecretInfo(cmd *cobra.Command, info SecretInfo) error {
	out := cmd.OutOrStdout()
	if globalFlags.JSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(info)
	}
	if info.Created {
		fmt.Fprintf(out, "Generated a new secret in %s\n", info.Database)
	}
	fmt.Fprintf(out, "Fingerprint: %s\n", info.Fingerprint)
	return nil
}
