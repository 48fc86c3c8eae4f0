// Command toolmint is the CLI for the tool engine: validate and store
// tool definitions, test-run drafts, run published tools, and serve the
// engine over MCP.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/toolmint/toolmint/pkg/config"
	tmcp "github.com/toolmint/toolmint/pkg/ecosystem/mcp"
	"github.com/toolmint/toolmint/pkg/harness"
	"github.com/toolmint/toolmint/pkg/logging"
	"github.com/toolmint/toolmint/pkg/providers"
	"github.com/toolmint/toolmint/pkg/render"
	"github.com/toolmint/toolmint/pkg/schema"
	"github.com/toolmint/toolmint/pkg/store"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
)

func main() {
	loadDotEnv() // load .env file if present (gitignored)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadDotEnv reads a .env file from the working directory and sets
// any variables that aren't already set in the environment.
// Lines are KEY=VALUE (or KEY="VALUE"). Comments (#) and blanks are skipped.
// The .env file is gitignored so secrets never end up in source control.
func loadDotEnv() {
	f, err := os.Open(".env")
	if err != nil {
		return // no .env file — that's fine
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		// Remove surrounding quotes
		val = strings.Trim(val, `"'`)
		// Don't overwrite existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

var rootCmd = &cobra.Command{
	Use:   "toolmint",
	Short: "Visual tool logic engine",
	Long:  "toolmint — a safe expression and step engine for form-driven tools: validate definitions, test-run drafts, and serve published tools.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		logger, err = logging.New(logging.Options{
			Debug:  cfg.Debug,
			Format: cfg.LogFormat,
			File:   cfg.LogFile,
		})
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate [tool.yaml]",
	Short: "Validate a tool definition YAML file against the schema",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	filePath := args[0]

	t, errs := schema.ValidateFile(filePath)
	if len(errs) > 0 {
		// Separate warnings from errors
		var errors []*schema.ValidationError
		var warnings []*schema.ValidationError
		for _, e := range errs {
			if e.Severity == "warning" {
				warnings = append(warnings, e)
			} else {
				errors = append(errors, e)
			}
		}
		for _, w := range warnings {
			fmt.Fprintf(os.Stderr, "  ⚠ [%s] %s\n", w.Phase, w.Message)
			if w.Path != "" {
				fmt.Fprintf(os.Stderr, "    at: %s\n", w.Path)
			}
		}
		if len(errors) > 0 {
			fmt.Fprintf(os.Stderr, "Validation failed: %d error(s)\n\n", len(errors))
			for i, e := range errors {
				fmt.Fprintf(os.Stderr, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
				if e.Path != "" {
					fmt.Fprintf(os.Stderr, "     at: %s\n", e.Path)
				}
			}
			return fmt.Errorf("validation failed with %d error(s)", len(errors))
		}
	}
	fmt.Printf("✓ %s is valid (%d fields, %d steps)\n", t.Name, len(t.Inputs), len(t.Logic))
	return nil
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Tool definition schema operations",
}

var schemaExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the tool definition JSON Schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := schema.GenerateJSONSchema()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

// --- save ---

var saveCmd = &cobra.Command{
	Use:   "save [tool.yaml]",
	Short: "Validate a tool definition and save it to the store",
	Args:  cobra.ExactArgs(1),
	RunE:  runSave,
}

func runSave(cmd *cobra.Command, args []string) error {
	t, errs := schema.ValidateFile(args[0])
	var blocking []*schema.ValidationError
	for _, e := range errs {
		if e.Severity != "warning" {
			blocking = append(blocking, e)
		}
	}
	if len(blocking) > 0 {
		for _, e := range blocking {
			fmt.Fprintf(os.Stderr, "  [%s] %s\n", e.Phase, e.Message)
		}
		return fmt.Errorf("cannot save: %d validation error(s)", len(blocking))
	}

	st, err := store.Open(cfg.Store.Dir)
	if err != nil {
		return err
	}
	if err := st.Save(t); err != nil {
		return err
	}
	fmt.Printf("✓ saved %s (%s) to %s\n", t.ID, t.Status, cfg.Store.Dir)
	return nil
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored tools with their lifecycle status",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cfg.Store.Dir)
		if err != nil {
			return err
		}
		tools := st.List()
		if len(tools) == 0 {
			fmt.Println("No tools stored. Use 'toolmint save' to add one.")
			return nil
		}
		for _, t := range tools {
			fmt.Printf("  %-24s %-10s %2d steps  %s\n", t.ID, t.Status, len(t.Logic), t.Name)
		}
		return nil
	},
}

// --- test ---

var (
	testInputVars []string
	testInputJSON string
	testOutJSON   bool
	testTrace     bool
)

var testCmd = &cobra.Command{
	Use:   "test [tool-id]",
	Short: "Execute a stored tool (any status) against test input",
	Args:  cobra.ExactArgs(1),
	RunE:  runTest,
}

func runTest(cmd *cobra.Command, args []string) error {
	var extra []harness.Option
	if testTrace {
		extra = append(extra, harness.WithTraceDir(cfg.Trace.Dir))
	}
	h, err := buildHarness(extra...)
	if err != nil {
		return err
	}
	input, err := parseInput(testInputVars, testInputJSON)
	if err != nil {
		return err
	}

	resp := h.TestTool(cmd.Context(), args[0], input)
	if testOutJSON {
		data, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(data))
		if !resp.Success {
			return fmt.Errorf("test run failed")
		}
		return nil
	}

	if !resp.Success {
		fmt.Fprintf(os.Stderr, "✗ test failed: %s\n", resp.Error)
		if len(resp.FailedFields) > 0 {
			fmt.Fprintf(os.Stderr, "  failed fields: %s\n", strings.Join(resp.FailedFields, ", "))
		}
		printValues(resp.Values)
		return fmt.Errorf("test run failed")
	}
	fmt.Printf("✓ completed in %dms\n", resp.ExecutionTimeMs)
	printValues(resp.Values)
	printRendered(resp.Result)
	return nil
}

// printValues lists the step values a run produced, sorted by key.
func printValues(values map[string]any) {
	if len(values) == 0 {
		return
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Println("  values:")
	for _, k := range keys {
		fmt.Printf("    %s = %v\n", k, values[k])
	}
}

// --- run ---

var (
	runInputVars []string
	runInputJSON string
	runOutJSON   bool
	runTrace     bool
)

var runCmd = &cobra.Command{
	Use:   "run [tool-id]",
	Short: "Run a published tool against user input",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	var extra []harness.Option
	if runTrace {
		extra = append(extra, harness.WithTraceDir(cfg.Trace.Dir))
	}
	h, err := buildHarness(extra...)
	if err != nil {
		return err
	}
	input, err := parseInput(runInputVars, runInputJSON)
	if err != nil {
		return err
	}

	resp := h.RunPublishedTool(cmd.Context(), args[0], input)
	if runOutJSON {
		data, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(data))
		if !resp.Success {
			return fmt.Errorf("run failed")
		}
		return nil
	}

	if !resp.Success {
		return fmt.Errorf("run failed: %s", resp.Error)
	}
	printRendered(resp.Outputs)
	return nil
}

// --- publish ---

var publishCmd = &cobra.Command{
	Use:   "publish [tool-id]",
	Short: "Advance a tool's lifecycle status (draft → testing → published)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cfg.Store.Dir)
		if err != nil {
			return err
		}
		t, err := st.Advance(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("✓ %s is now %s\n", t.ID, t.Status)
		return nil
	},
}

// --- serve ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the engine over MCP on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cfg.Store.Dir)
		if err != nil {
			return err
		}
		h, err := buildHarnessWith(st)
		if err != nil {
			return err
		}
		logger.Info("starting MCP server",
			zap.String("store", cfg.Store.Dir),
			zap.Int("tools", len(st.List())))
		s := tmcp.NewServer(version, &tmcp.Handlers{Store: st, Harness: h})
		return server.ServeStdio(s)
	},
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("toolmint %s (build: %s)\n", version, commit)
	},
}

// buildHarness opens the configured store and wires the execution
// collaborators from config.
func buildHarness(extra ...harness.Option) (*harness.Harness, error) {
	st, err := store.Open(cfg.Store.Dir)
	if err != nil {
		return nil, err
	}
	return buildHarnessWith(st, extra...)
}

func buildHarnessWith(st *store.Store, extra ...harness.Option) (*harness.Harness, error) {
	opts := []harness.Option{
		harness.WithLogger(logger),
		harness.WithHTTPDoer(providers.NewClient(
			providers.WithTimeout(cfg.Execution.HTTPTimeout),
		)),
		harness.WithExecutionLimits(cfg.Execution.MaxSteps, cfg.Execution.HTTPTimeout, cfg.Execution.AITimeout),
	}
	if cfg.Inference.APIKey != "" {
		chat, err := providers.NewChatClient(cfg.Inference.APIKey,
			providers.WithBaseURL(cfg.Inference.BaseURL),
			providers.WithDefaultModel(cfg.Inference.Model),
		)
		if err != nil {
			return nil, err
		}
		opts = append(opts, harness.WithInferencer(chat))
	}
	opts = append(opts, extra...)
	return harness.New(st, opts...), nil
}

// parseInput merges repeated --input key=value flags with an optional
// --input-json object. JSON keys win on conflict.
func parseInput(vars []string, jsonDoc string) (map[string]any, error) {
	input := make(map[string]any)
	for _, v := range vars {
		parts := strings.SplitN(v, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --input %q: expected key=value", v)
		}
		input[parts[0]] = parts[1]
	}
	if jsonDoc != "" {
		var extra map[string]any
		if err := json.Unmarshal([]byte(jsonDoc), &extra); err != nil {
			return nil, fmt.Errorf("invalid --input-json: %w", err)
		}
		for k, v := range extra {
			input[k] = v
		}
	}
	return input, nil
}

// printRendered writes a rendered result to stdout. Markdown output is
// styled for the terminal; everything else prints as-is.
func printRendered(r *render.Rendered) {
	if r == nil {
		return
	}
	if r.Format == "markdown" {
		fmt.Println(renderTerminalMarkdown(r.Content))
		return
	}
	fmt.Println(r.Content)
}

// renderTerminalMarkdown converts markdown to styled terminal output.
// Falls back to the raw input if glamour is unavailable or rendering fails.
func renderTerminalMarkdown(md string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	// Glamour adds trailing newlines; trim for inline use
	return strings.TrimRight(out, "\n")
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file path (default: ./toolmint.yaml)")

	// test flags
	testCmd.Flags().StringArrayVar(&testInputVars, "input", nil, "Set an input field (key=value), repeatable")
	testCmd.Flags().StringVar(&testInputJSON, "input-json", "", "Input as a JSON object")
	testCmd.Flags().BoolVar(&testOutJSON, "json", false, "Output the full test response as JSON")
	testCmd.Flags().BoolVar(&testTrace, "trace", false, "Write a JSONL execution trace under the trace directory")

	// run flags
	runCmd.Flags().StringArrayVar(&runInputVars, "input", nil, "Set an input field (key=value), repeatable")
	runCmd.Flags().StringVar(&runInputJSON, "input-json", "", "Input as a JSON object")
	runCmd.Flags().BoolVar(&runOutJSON, "json", false, "Output the full run response as JSON")
	runCmd.Flags().BoolVar(&runTrace, "trace", false, "Write a JSONL execution trace under the trace directory")

	// schema subcommands
	schemaCmd.AddCommand(schemaExportCmd)

	// root subcommands
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
