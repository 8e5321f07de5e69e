package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/vrceventbot/vrceventbot/internal/config"
	"github.com/vrceventbot/vrceventbot/internal/store"
	"github.com/vrceventbot/vrceventbot/internal/vault"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose system and configuration issues",
	Long: `Perform a system diagnostic for VRCEventBot.

This command checks:
- System information (OS, Go version, etc.)
- Configuration file and its values
- Database, secret and credential record backend
- Recommendations for fixes

Example:
  vrceventbot doctor`,
	RunE: runDoctor,
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	if globalFlags.Verbose {
		log.Println("Starting system diagnostic...")
	}

	report := DoctorReport{
		Timestamp: time.Now().UTC(),
		Checks:    []DoctorCheck{},
	}

	report.Checks = append(report.Checks, collectSystemInfo()...)

	cfg, checks := checkConfiguration(globalFlags.Config)
	report.Checks = append(report.Checks, checks...)
	report.Checks = append(report.Checks, checkStorage(cmd.Context(), cfg, resolveDBPath(cfg))...)

	report.Recommendations = generateRecommendations(report.Checks)

	return outputDoctorReport(cmd.OutOrStdout(), report)
}

// DoctorReport represents the complete diagnostic report
type DoctorReport struct {
	Timestamp       time.Time     `json:"timestamp"`
	Checks          []DoctorCheck `json:"checks"`
	Recommendations []string      `json:"recommendations"`
}

// DoctorCheck represents a single diagnostic check
type DoctorCheck struct {
	Category    string `json:"category"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Message     string `json:"message"`
	Severity    string `json:"severity,omitempty"`
	Remediation string `json:"remediation,omitempty"`
}

// Check statuses.
const (
	statusOK   = "OK"
	statusWarn = "WARN"
	statusFail = "FAIL"
)

// Check categories, in report order.
const (
	categorySystem  = "System"
	categoryConfig  = "Configuration"
	categoryStorage = "Storage"
)

func collectSystemInfo() []DoctorCheck {
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	wd := "unknown"
	if dir, err := os.Getwd(); err == nil {
		wd = dir
	}

	return []DoctorCheck{
		{Category: categorySystem, Name: "Operating System", Status: statusOK, Message: fmt.Sprintf("OS: %s (%s)", runtime.GOOS, runtime.GOARCH)},
		{Category: categorySystem, Name: "Go Version", Status: statusOK, Message: fmt.Sprintf("Go: %s (CPUs: %d)", runtime.Version(), runtime.NumCPU())},
		{Category: categorySystem, Name: "User", Status: statusOK, Message: fmt.Sprintf("User: %s", username)},
		{Category: categorySystem, Name: "Working Directory", Status: statusOK, Message: fmt.Sprintf("Directory: %s", wd)},
	}
}

// checkConfiguration loads path and inspects the values that commonly go wrong.
// The returned config is nil when loading failed.
func checkConfiguration(path string) (*config.Config, []DoctorCheck) {
	cfg, err := config.NewLoader(path).Load()
	if err != nil {
		return nil, []DoctorCheck{{
			Category:    categoryConfig,
			Name:        "Config File",
			Status:      statusFail,
			Message:     fmt.Sprintf("Config file not found or invalid: %v", err),
			Severity:    "high",
			Remediation: "Create a valid config.yaml (discord.token is required) or pass --config",
		}}
	}

	checks := []DoctorCheck{{
		Category: categoryConfig,
		Name:     "Config File",
		Status:   statusOK,
		Message:  fmt.Sprintf("Config file loaded: %s", path),
	}}

	if cfg.Discord.OwnerID == "" {
		checks = append(checks, DoctorCheck{
			Category:    categoryConfig,
			Name:        "Owner",
			Status:      statusWarn,
			Message:     "discord.owner_id is empty; server administrators manage groups",
			Severity:    "low",
			Remediation: "Set discord.owner_id to restrict /manage and /config to one user",
		})
	}

	if cfg.Discord.PendingLoginTTL == 0 {
		checks = append(checks, DoctorCheck{
			Category: categoryConfig,
			Name:     "Pending Logins",
			Status:   statusOK,
			Message:  "Unfinished MFA logins are kept until replaced",
		})
	} else {
		checks = append(checks, DoctorCheck{
			Category: categoryConfig,
			Name:     "Pending Logins",
			Status:   statusOK,
			Message:  fmt.Sprintf("Unfinished MFA logins expire after %s", cfg.Discord.PendingLoginTTL),
		})
	}

	if cfg.Server.Enabled && cfg.Server.Host != "127.0.0.1" && cfg.Server.Host != "localhost" && len(cfg.Server.APIKeys) == 0 {
		checks = append(checks, DoctorCheck{
			Category:    categoryConfig,
			Name:        "Ops Server",
			Status:      statusWarn,
			Message:     fmt.Sprintf("Ops server listens on %s without api_keys", cfg.Server.Addr()),
			Severity:    "medium",
			Remediation: "Bind server.host to 127.0.0.1 or set server.api_keys",
		})
	}

	return cfg, checks
}

// checkStorage opens the database and the record backend the bot would use.
func checkStorage(ctx context.Context, cfg *config.Config, dbPath string) []DoctorCheck {
	if _, err := os.Stat(filepath.Dir(dbPath)); os.IsNotExist(err) {
		return []DoctorCheck{{
			Category:    categoryStorage,
			Name:        "Database",
			Status:      statusWarn,
			Message:     fmt.Sprintf("Database directory does not exist: %s", filepath.Dir(dbPath)),
			Severity:    "medium",
			Remediation: "The database is created automatically on first start",
		}}
	}

	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return []DoctorCheck{{
			Category:    categoryStorage,
			Name:        "Database",
			Status:      statusFail,
			Message:     fmt.Sprintf("Cannot open database: %v", err),
			Severity:    "high",
			Remediation: "Check the path and file permissions of store.path",
		}}
	}
	defer st.Close()

	checks := []DoctorCheck{}
	version, err := st.SchemaVersion(ctx)
	if err != nil {
		checks = append(checks, DoctorCheck{Category: categoryStorage, Name: "Database", Status: statusFail, Message: err.Error(), Severity: "high"})
	} else {
		checks = append(checks, DoctorCheck{Category: categoryStorage, Name: "Database", Status: statusOK, Message: fmt.Sprintf("%s (schema v%d)", dbPath, version)})
	}

	secrets := vault.NewSecretManager(st.Settings())
	ok, err := secrets.Exists()
	switch {
	case err != nil:
		checks = append(checks, DoctorCheck{
			Category:    categoryStorage,
			Name:        "Secret",
			Status:      statusFail,
			Message:     err.Error(),
			Severity:    "high",
			Remediation: "The stored secret is damaged; stored records cannot be opened and users must /login again",
		})
	case !ok:
		checks = append(checks, DoctorCheck{
			Category:    categoryStorage,
			Name:        "Secret",
			Status:      statusWarn,
			Message:     "No secret yet",
			Severity:    "low",
			Remediation: "Run 'vrceventbot secret init' or start the bot once",
		})
	default:
		checks = append(checks, DoctorCheck{Category: categoryStorage, Name: "Secret", Status: statusOK, Message: "Secret present"})
	}

	records, err := openRecords(cfg, st)
	if err != nil {
		checks = append(checks, DoctorCheck{
			Category:    categoryStorage,
			Name:        "Credential Records",
			Status:      statusFail,
			Message:     err.Error(),
			Severity:    "high",
			Remediation: "Check vault.logins_dir permissions",
		})
		return checks
	}
	users, err := records.ListCredentialUsers(ctx)
	if err != nil {
		checks = append(checks, DoctorCheck{Category: categoryStorage, Name: "Credential Records", Status: statusFail, Message: err.Error(), Severity: "high"})
		return checks
	}
	backend := config.VaultBackendSQLite
	if cfg != nil {
		backend = cfg.Vault.Backend
	}
	checks = append(checks, DoctorCheck{
		Category: categoryStorage,
		Name:     "Credential Records",
		Status:   statusOK,
		Message:  fmt.Sprintf("%d stored (%s backend)", len(users), backend),
	})
	return checks
}

func generateRecommendations(checks []DoctorCheck) []string {
	recommendations := []string{}

	failCount := 0
	warnCount := 0

	for _, check := range checks {
		if check.Status == statusFail {
			failCount++
			if check.Remediation != "" {
				recommendations = append(recommendations, fmt.Sprintf("[%s] %s: %s", check.Category, check.Name, check.Remediation))
			}
		}
		if check.Status == statusWarn {
			warnCount++
		}
	}

	if failCount == 0 && warnCount == 0 {
		recommendations = append(recommendations, "System is healthy. No recommendations needed.")
	} else if failCount > 0 {
		recommendations = append(recommendations, fmt.Sprintf("Found %d critical issue(s) and %d warning(s). Please address the critical issues first.", failCount, warnCount))
	}

	return recommendations
}

func outputDoctorReport(out io.Writer, report DoctorReport) error {
	if globalFlags.JSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}
	return outputDoctorReportTable(out, report)
}

func outputDoctorReportTable(out io.Writer, report DoctorReport) error {
	fmt.Fprintln(out, "=== VRCEventBot Doctor Report ===")
	fmt.Fprintf(out, "Generated: %s\n", report.Timestamp.Format(time.RFC3339))

	for _, category := range []string{categorySystem, categoryConfig, categoryStorage} {
		fmt.Fprintf(out, "\n--- %s ---\n", category)
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, check := range report.Checks {
			if check.Category != category {
				continue
			}
			fmt.Fprintf(w, "%s %s:\t%s\n", statusIcon(check.Status), check.Name, check.Message)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(out, "\n--- Recommendations ---")
	for _, rec := range report.Recommendations {
		fmt.Fprintf(out, "• %s\n", rec)
	}
	return nil
}

func statusIcon(status string) string {
	switch status {
	case statusFail:
		return "✗"
	case statusWarn:
		return "!"
	default:
		return "✓"
	}
}
