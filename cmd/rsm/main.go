// Command rsm is the runtime toolchain front-end: run an SCXML document,
// generate a compiled machine from one, or drive the W3C conformance suite.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	rsm "github.com/newmassrael/reactive-state-machine-sub002"
	"github.com/newmassrael/reactive-state-machine-sub002/codegen"
	_ "github.com/newmassrael/reactive-state-machine-sub002/datamodel/ecmascript"
	_ "github.com/newmassrael/reactive-state-machine-sub002/datamodel/null"
	"github.com/newmassrael/reactive-state-machine-sub002/interpreter"
	"github.com/newmassrael/reactive-state-machine-sub002/model"
	"github.com/newmassrael/reactive-state-machine-sub002/parser"
	"github.com/newmassrael/reactive-state-machine-sub002/w3ctest"
)

func main() {
	root := &cobra.Command{
		Use:           "rsm",
		Short:         "SCXML runtime toolchain",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCommand(), codegenCommand(), w3cCommand())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rsm:", err)
		os.Exit(1)
	}
}

func loadDocument(path string) (*model.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, result, err := parser.ParseBytes(data, path)
	if err != nil {
		return nil, err
	}
	for _, d := range result.Diagnostics {
		fmt.Fprintln(os.Stderr, d.String())
	}
	if result.HasErrors() {
		return nil, fmt.Errorf("%s: document is malformed", path)
	}
	return doc, nil
}

func runCommand() *cobra.Command {
	var events []string
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "run input.scxml",
		Short: "Run a document in the interpreter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument(args[0])
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			session, err := interpreter.New(doc,
				interpreter.WithLogger(logger),
				interpreter.WithDocumentLoader(func(ctx context.Context, src string) (*model.Document, error) {
					return loadDocument(filepath.Join(filepath.Dir(args[0]), strings.TrimPrefix(src, "file:")))
				}),
			)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := session.Start(ctx); err != nil {
				return err
			}
			for _, name := range events {
				if err := session.Send(ctx, rsm.NewEvent(name, rsm.EventTypeExternal)); err != nil {
					return err
				}
			}
			select {
			case <-session.Done():
			case <-time.After(wait):
				fmt.Println("configuration:", strings.Join(session.Configuration(), " "))
				return session.Stop(ctx)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&events, "event", nil, "external events to send after start")
	cmd.Flags().DurationVar(&wait, "wait", 2*time.Second, "how long to wait for termination")
	return cmd
}

func codegenCommand() *cobra.Command {
	var outDir string
	var pkg string

	cmd := &cobra.Command{
		Use:   "codegen [-o DIR] input.scxml",
		Short: "Generate a compiled machine for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument(args[0])
			if err != nil {
				return err
			}
			source, err := codegen.Generate(doc, codegen.Options{
				Package: pkg,
				Source:  filepath.Base(args[0]),
			})
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			base := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			out := filepath.Join(outDir, base+"_machine.go")
			if err := os.WriteFile(out, source, 0o644); err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "output", "o", ".", "output directory")
	cmd.Flags().StringVar(&pkg, "package", "machine", "generated package name")
	return cmd
}

func w3cCommand() *cobra.Command {
	var resources string
	var output string
	var compare bool
	var workers int

	cmd := &cobra.Command{
		Use:   "w3c [--resources PATH] [--output FILE] [id ...] [start~end] [~upto]",
		Short: "Run the W3C conformance suite",
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, err := w3ctest.ParseSelection(args)
			if err != nil {
				return err
			}
			tests, err := w3ctest.Discover(resources)
			if err != nil {
				return err
			}
			tests = sel.Filter(tests)
			if len(tests) == 0 {
				return fmt.Errorf("no tests selected under %s", resources)
			}

			runner := &w3ctest.Runner{
				Logger:  slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
				Workers: workers,
				Compare: compare,
			}
			report, err := runner.Run(cmd.Context(), tests)
			if err != nil {
				return err
			}
			if err := report.WriteText(os.Stdout); err != nil {
				return err
			}
			if output != "" {
				store, err := w3ctest.OpenResultStore(output)
				if err != nil {
					return err
				}
				defer store.Close()
				if _, err := store.RecordRun(report); err != nil {
					return err
				}
			}
			if !report.AllPassed() {
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&resources, "resources", "testdata/w3c", "directory holding the test documents")
	cmd.Flags().StringVar(&output, "output", "", "sqlite database to record results into")
	cmd.Flags().BoolVar(&compare, "compare", false, "also run with precomputed dispatch and compare traces")
	cmd.Flags().IntVar(&workers, "workers", 4, "parallel test sessions")
	return cmd
}
