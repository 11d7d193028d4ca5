// Command proposal-render renders a block template against a variables file
// without Redis, for previewing templates and catalog overrides.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aescanero/dago-node-proposal/internal/blocks"
	"github.com/aescanero/dago-node-proposal/internal/eval/cel"
	"github.com/aescanero/dago-node-proposal/internal/eval/template"
	"github.com/aescanero/dago-node-proposal/internal/proposal"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "proposal-render: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	templatePath string
	varsPath     string
	catalogPath  string
	outPath      string
	raw          bool
	validateOnly bool
	noRules      bool
	maxDepth     int
	maxOutput    int
	logLevel     string
}

func run(args []string, stdout, stderr io.Writer) error {
	var opts options

	flagSet := pflag.NewFlagSet("proposal-render", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&opts.templatePath, "template", "t", "", "template file (JSON, comments allowed)")
	flagSet.StringVarP(&opts.varsPath, "vars", "v", "", "variables file (JSON or YAML)")
	flagSet.StringVarP(&opts.catalogPath, "catalog", "c", "", "YAML file overriding block templates")
	flagSet.StringVarP(&opts.outPath, "out", "o", "", "output file (default: stdout)")
	flagSet.BoolVar(&opts.raw, "raw", false, "do not HTML-escape variable values")
	flagSet.BoolVar(&opts.validateOnly, "validate", false, "validate the template against the catalog and exit")
	flagSet.BoolVar(&opts.noRules, "no-rules", false, "ignore block when expressions")
	flagSet.IntVar(&opts.maxDepth, "max-depth", template.DefaultMaxDepth, "maximum loop nesting depth (0 disables the limit)")
	flagSet.IntVar(&opts.maxOutput, "max-output", template.DefaultMaxOutput, "maximum bytes in the rendered document (0 disables the limit)")
	flagSet.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if opts.templatePath == "" {
		return fmt.Errorf("--template is required")
	}
	if opts.varsPath == "" && !opts.validateOnly {
		return fmt.Errorf("--vars is required")
	}

	logger, err := newLogger(opts.logLevel, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	tplData, err := os.ReadFile(opts.templatePath)
	if err != nil {
		return fmt.Errorf("failed to read template: %w", err)
	}
	tpl, err := proposal.ParseTemplate(tplData)
	if err != nil {
		return err
	}

	catalog := blocks.NewCatalog()
	if opts.catalogPath != "" {
		if err := catalog.LoadFile(opts.catalogPath); err != nil {
			return err
		}
	}

	var rules *cel.Evaluator
	if !opts.noRules {
		rules = cel.NewEvaluator()
	}

	if err := catalog.Validate(rules, tpl.Blocks); err != nil {
		return fmt.Errorf("invalid template %q: %w", tpl.Name, err)
	}
	if opts.validateOnly {
		fmt.Fprintf(stdout, "%s: %d blocks ok\n", opts.templatePath, len(tpl.Blocks))
		return nil
	}

	vars, err := readVariables(opts.varsPath)
	if err != nil {
		return err
	}

	engine := template.NewEngine(
		template.WithLogger(logger),
		template.WithEscaping(!opts.raw),
		template.WithMaxDepth(opts.maxDepth),
		template.WithMaxOutput(opts.maxOutput),
	)
	renderer := blocks.NewRenderer(engine, catalog, rules, logger)

	html, renderErr := renderer.RenderBlocks(context.Background(), tpl.Blocks, vars.Context())

	if err := writeOutput(opts.outPath, stdout, html); err != nil {
		return err
	}
	if renderErr != nil {
		return fmt.Errorf("document is incomplete: %w", renderErr)
	}
	return nil
}

// readVariables reads a JSON or YAML variables file. YAML is converted to JSON
// so that both go through the same strict decoding.
func readVariables(path string) (*proposal.Variables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read variables: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse variables: %w", err)
		}
		if data, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("failed to convert variables: %w", err)
		}
	}

	return proposal.ParseVariables(data)
}

func writeOutput(path string, stdout io.Writer, html string) error {
	if path == "" {
		_, err := io.WriteString(stdout, html)
		return err
	}
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newLogger(level string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(w), lvl)
	return zap.New(core), nil
}
