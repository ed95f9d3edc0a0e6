package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/taskgate/internal/config"
	"github.com/mattjoyce/taskgate/internal/doctor"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate or lock configuration",
	}

	check := &cobra.Command{
		Use:   "check",
		Short: "Load the config, verify checksums, build every handler and inspect the host",
		Args:  cobra.NoArgs,
		RunE:  runConfigCheck,
	}
	check.Flags().Bool("json", false, "Print the doctor report as JSON")

	lock := &cobra.Command{
		Use:   "lock",
		Short: "Write BLAKE3 checksums for the config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigLock,
	}
	lock.Flags().Bool("dry-run", false, "Print hashes without writing .checksums")

	cmd.AddCommand(check, lock)
	return cmd
}

func runConfigCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}

	result := doctor.New(cfg).Validate()
	w := cmd.OutOrStdout()
	asJSON, _ := cmd.Flags().GetBool("json")

	if asJSON {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, out)
	} else {
		source := cfg.SourcePath
		if source == "" {
			source = "(defaults)"
		}
		fmt.Fprintf(w, "config: %s\n", source)
		fmt.Fprintf(w, "sandbox: %s\n", a.guard.Root())
		fmt.Fprintf(w, "kinds: %d\n", a.registry.Len())
		fmt.Fprintf(w, "deadline: %s\n", cfg.Supervisor.Deadline)
		fmt.Fprint(w, doctor.FormatHuman(result))
	}

	if !result.Valid {
		return fmt.Errorf("config check found %d error(s)", len(result.Errors))
	}
	if !asJSON {
		fmt.Fprintln(w, "OK")
	}
	return nil
}

func runConfigLock(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return fmt.Errorf("--config is required for config lock")
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	// Validate before locking so a broken file is never blessed.
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(cfg.SourcePath)
	report, err := config.GenerateChecksumsWithReport(dir, []string{filepath.Base(cfg.SourcePath)}, dryRun)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for _, f := range report.Files {
		fmt.Fprintf(w, "%s  %s\n", f.Hash, f.Filename)
	}
	if report.Written {
		fmt.Fprintf(w, "wrote %s\n", report.ChecksumPath)
	}
	return nil
}
