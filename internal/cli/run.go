package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/taskgate/internal/log"
	"github.com/mattjoyce/taskgate/internal/task"
)

// outcomeReport is the --json rendering of an outcome.
type outcomeReport struct {
	Outcome string `json:"outcome"`
	Code    string `json:"code,omitempty"`
	Detail  string `json:"detail"`
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [task text...]",
		Short: "Execute one task and exit",
		Long: `Execute one task under the same guard and deadline as the server.

The task is either plain-English text (classified by the LLM) or, with
--descriptor, a JSON descriptor that skips classification. --descriptor
accepts inline JSON, @path to read a file, or - for stdin.`,
		RunE: runTask,
	}
	cmd.Flags().String("descriptor", "", "JSON task descriptor, @file or - for stdin")
	cmd.Flags().Bool("json", false, "Print the outcome as JSON")
	return cmd
}

func runTask(cmd *cobra.Command, args []string) error {
	descriptor, _ := cmd.Flags().GetString("descriptor")
	asJSON, _ := cmd.Flags().GetBool("json")
	text := strings.TrimSpace(strings.Join(args, " "))
	if descriptor == "" && text == "" {
		return fmt.Errorf("task text or --descriptor is required")
	}
	if descriptor != "" && text != "" {
		return fmt.Errorf("task text and --descriptor are mutually exclusive")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log.SetupTo(cmd.ErrOrStderr(), cfg.Service.LogLevel, cfg.Service.LogFormat)

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}

	var out task.Outcome
	if descriptor != "" {
		d, err := readDescriptor(descriptor, cmd.InOrStdin())
		if err != nil {
			return err
		}
		log.WithKind(string(d.Kind)).Debug("running descriptor")
		out = a.supervisor.ExecuteDescriptor(cmd.Context(), d)
	} else {
		out = a.supervisor.Execute(cmd.Context(), text)
	}

	w := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(outcomeReport{Outcome: out.Kind.String(), Code: out.Code, Detail: out.Detail()}); err != nil {
			return err
		}
	} else if out.Kind == task.OutcomeSuccess {
		fmt.Fprintln(w, out.Message)
	}

	if out.Kind != task.OutcomeSuccess {
		return fmt.Errorf("%s: %s", out.Kind, out.Detail())
	}
	return nil
}

func readDescriptor(arg string, stdin io.Reader) (task.Descriptor, error) {
	var r io.Reader
	switch {
	case arg == "-":
		r = stdin
	case strings.HasPrefix(arg, "@"):
		f, err := os.Open(arg[1:])
		if err != nil {
			return task.Descriptor{}, fmt.Errorf("open descriptor: %w", err)
		}
		defer f.Close()
		r = f
	default:
		r = strings.NewReader(arg)
	}
	d, err := task.DecodeDescriptor(r)
	if err != nil {
		return task.Descriptor{}, fmt.Errorf("invalid descriptor: %w", err)
	}
	return d, nil
}
