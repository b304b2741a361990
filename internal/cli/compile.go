package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tinker/internal/compiler"
	"github.com/roach88/tinker/internal/state"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
}

// ExportInfo describes one export of a compiled module.
type ExportInfo struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`  // "func", "global", "memory", "table"
	Value string `json:"value"` // signature, value or description
}

// CompilationResult holds the exports of a compiled module.
type CompilationResult struct {
	Module  string       `json:"module"`
	Exports []ExportInfo `json:"exports"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile [module.wat]",
		Short: "Compile a module and list its exports",
		Long: `Compile a WebAssembly text module, instantiate it with an empty import
table, and list its exports.

Without an argument the built-in module is compiled.

Exit codes:
  0 - Module compiled
  2 - Module not found or failed to compile`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) > 0 {
				path = args[0]
			}
			return runCompile(opts, path, cmd)
		},
	}

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	source, err := readModule(path)
	if err != nil {
		return moduleError(formatter, path, err)
	}
	name := path
	if name == "" {
		name = "(built-in)"
	}
	formatter.VerboseLog("Compiling %s (%d bytes)", name, len(source))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	result := compiler.New(compiler.WithCallTimeout(callTimeout)).Compile(ctx, source)
	if result.Failed() {
		return outputCompileError(formatter, result.Err)
	}

	return outputCompileSuccess(formatter, CompilationResult{
		Module:  name,
		Exports: describeExports(result),
	})
}

// describeExports lists the exports of result in declaration order.
func describeExports(result state.CompileResult) []ExportInfo {
	exports := make([]ExportInfo, 0, len(result.Names))
	for _, name := range result.Names {
		info := ExportInfo{Name: name}
		switch v := result.Values[name].(type) {
		case *compiler.Function:
			info.Kind = "func"
			info.Value = v.String()
		case *compiler.Opaque:
			info.Kind = v.Kind
			info.Value = v.String()
		default:
			info.Kind = "global"
			info.Value = fmt.Sprint(v)
		}
		exports = append(exports, info)
	}
	return exports
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result CompilationResult) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	// Human-readable text output
	fmt.Fprintf(formatter.Writer, "✓ Compiled %s: %d export(s)\n", result.Module, len(result.Exports))
	for _, e := range result.Exports {
		fmt.Fprintf(formatter.Writer, "  %s %s: %s\n", e.Kind, e.Name, e.Value)
	}
	return nil
}

// outputCompileError reports a failed compile. Compilation errors are
// command-level errors (exit code 2).
func outputCompileError(formatter *OutputFormatter, err error) error {
	var details map[string]string
	if stage := compiler.StageOf(err); stage != "" {
		details = map[string]string{"stage": string(stage)}
	}

	if formatter.JSON() {
		_ = formatter.Error(ErrCodeCompileFailed, err.Error(), details)
	} else {
		fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
		if details != nil {
			fmt.Fprintf(formatter.Writer, "  stage: %s\n", details["stage"])
		}
		fmt.Fprintf(formatter.Writer, "  %s\n", err)
	}
	return WrapExitError(ExitCommandError, "compilation failed", err)
}
