package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/gofiber/fiber/v2/log"
	"github.com/spf13/cobra"

	"codeless/internal/config"
	"codeless/pkg/codeless"
)

type renderOptions struct {
	input     string
	data      string
	output    string
	inputDir  string
	outputDir string
	fragment  string
	stats     bool
}

var renderOpts renderOptions

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a template, a directory of templates, or stdin",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := renderOpts.validate(); err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		r := &runner{
			opts:   renderOpts,
			cfg:    cfg,
			fs:     osfs.New("/"),
			stdin:  cmd.InOrStdin(),
			stdout: cmd.OutOrStdout(),
			stderr: cmd.ErrOrStderr(),
		}

		switch {
		case renderOpts.inputDir != "":
			return r.batch(cmd.Context())
		case renderOpts.input != "":
			return r.single(cmd.Context())
		default:
			return r.fromStdin(cmd.Context())
		}
	},
}

func init() {
	f := renderCmd.Flags()
	f.StringVarP(&renderOpts.input, "input", "i", "", "Template file")
	f.StringVarP(&renderOpts.data, "data", "d", "", "YAML or JSON data file")
	f.StringVarP(&renderOpts.output, "output", "o", "", "Output file (default: stdout)")
	f.StringVar(&renderOpts.inputDir, "input-dir", "", "Render every HTML file in a directory")
	f.StringVar(&renderOpts.outputDir, "output-dir", "", "Output directory for batch rendering")
	f.StringVar(&renderOpts.fragment, "fragment", "", "Only output the element with this id")
	f.BoolVar(&renderOpts.stats, "stats", false, "Show processing statistics")
}

func (o renderOptions) validate() error {
	if o.input != "" && o.inputDir != "" {
		return fmt.Errorf("cannot specify both --input and --input-dir")
	}
	if o.inputDir != "" && o.outputDir == "" {
		return fmt.Errorf("--output-dir required when using --input-dir")
	}
	if o.inputDir != "" && o.output != "" {
		return fmt.Errorf("--output cannot be used with --input-dir")
	}
	return nil
}

type runner struct {
	opts   renderOptions
	cfg    config.Config
	fs     billy.Filesystem
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// machine prepares a Machine whose relative paths resolve against dir
func (r *runner) machine(dir string) (*codeless.Machine, error) {
	m := codeless.New(r.cfg, codeless.WithFilesystem(r.fs), codeless.WithBaseDir(dir))
	if r.opts.data != "" {
		data, err := filepath.Abs(r.opts.data)
		if err != nil {
			return nil, err
		}
		if err := m.AssignDataFile(data); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (r *runner) single(ctx context.Context) error {
	out, stats, err := r.renderFile(ctx, r.opts.input)
	if err != nil {
		return err
	}
	if err := r.write(out, r.opts.output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if r.opts.stats {
		r.showStats(stats, r.opts.input)
	}
	return nil
}

func (r *runner) fromStdin(ctx context.Context) error {
	markup, err := io.ReadAll(r.stdin)
	if err != nil {
		return fmt.Errorf("failed to read from stdin: %w", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	m, err := r.machine(wd)
	if err != nil {
		return err
	}
	if err := m.SetTemplate(string(markup)); err != nil {
		return err
	}
	out, err := m.Rendered(ctx, r.opts.fragment)
	if err != nil {
		return err
	}

	if err := r.write(out, r.opts.output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if r.opts.stats {
		r.showStats(m.Stats(), "<stdin>")
	}
	return nil
}

func (r *runner) batch(ctx context.Context) error {
	inputDir, err := filepath.Abs(r.opts.inputDir)
	if err != nil {
		return err
	}
	outputDir, err := filepath.Abs(r.opts.outputDir)
	if err != nil {
		return err
	}

	files, err := findHTMLFiles(r.fs, inputDir)
	if err != nil {
		return fmt.Errorf("failed to find HTML files: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no HTML files found in directory: %s", r.opts.inputDir)
	}

	var total codeless.ProcessingStats
	rendered := 0
	for i, path := range files {
		log.Debugf("rendering %d/%d: %s", i+1, len(files), path)

		out, stats, err := r.renderFile(ctx, path)
		if err != nil {
			log.Warnf("failed to render %s: %v", path, err)
			continue
		}

		rel, _ := filepath.Rel(inputDir, path)
		target := filepath.Join(outputDir, rel)
		if err := r.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			log.Warnf("failed to create output directory %s: %v", filepath.Dir(target), err)
			continue
		}
		if err := r.write(out, target); err != nil {
			log.Warnf("failed to write %s: %v", target, err)
			continue
		}

		rendered++
		total.ElementsBound += stats.ElementsBound
		total.NodesDuplicated += stats.NodesDuplicated
		total.Imports += stats.Imports
		total.Includes += stats.Includes
		total.Passes += stats.Passes
		total.ProcessingTimeMs += stats.ProcessingTimeMs
	}

	if r.opts.stats {
		fmt.Fprintf(r.stderr, "\nBatch Rendering Summary:\n")
		fmt.Fprintf(r.stderr, "Files rendered: %d/%d\n", rendered, len(files))
		fmt.Fprintf(r.stderr, "Elements bound: %d\n", total.ElementsBound)
		fmt.Fprintf(r.stderr, "Nodes duplicated: %d\n", total.NodesDuplicated)
		fmt.Fprintf(r.stderr, "Imports: %d\n", total.Imports)
		fmt.Fprintf(r.stderr, "Includes: %d\n", total.Includes)
		fmt.Fprintf(r.stderr, "Passes: %d\n", total.Passes)
		fmt.Fprintf(r.stderr, "Total processing time: %dms\n", total.ProcessingTimeMs)
	}
	if rendered == 0 {
		return fmt.Errorf("no file in %s could be rendered", r.opts.inputDir)
	}
	return nil
}

func (r *runner) renderFile(ctx context.Context, filename string) (string, codeless.ProcessingStats, error) {
	abs, err := filepath.Abs(filename)
	if err != nil {
		return "", codeless.ProcessingStats{}, err
	}
	m, err := r.machine(filepath.Dir(abs))
	if err != nil {
		return "", codeless.ProcessingStats{}, err
	}
	if err := m.SetTemplateFile(abs); err != nil {
		return "", codeless.ProcessingStats{}, err
	}
	out, err := m.Rendered(ctx, r.opts.fragment)
	if err != nil {
		return "", codeless.ProcessingStats{}, fmt.Errorf("failed to render %s: %w", filename, err)
	}
	return out, m.Stats(), nil
}

// write writes content to a file, or stdout when filename is empty
func (r *runner) write(content, filename string) error {
	if filename == "" {
		_, err := io.WriteString(r.stdout, content)
		return err
	}
	abs, err := filepath.Abs(filename)
	if err != nil {
		return err
	}
	return util.WriteFile(r.fs, abs, []byte(content), 0o644)
}

func (r *runner) showStats(stats codeless.ProcessingStats, name string) {
	fmt.Fprintf(r.stderr, "\nProcessing Statistics for %s:\n", name)
	fmt.Fprintf(r.stderr, "  Elements bound: %d\n", stats.ElementsBound)
	fmt.Fprintf(r.stderr, "  Nodes duplicated: %d\n", stats.NodesDuplicated)
	fmt.Fprintf(r.stderr, "  Imports: %d\n", stats.Imports)
	fmt.Fprintf(r.stderr, "  Includes: %d\n", stats.Includes)
	fmt.Fprintf(r.stderr, "  Passes: %d\n", stats.Passes)
	fmt.Fprintf(r.stderr, "  Processing time: %dms\n", stats.ProcessingTimeMs)
}

// findHTMLFiles finds all HTML files under dir
func findHTMLFiles(fs billy.Filesystem, dir string) ([]string, error) {
	var files []string
	err := util.Walk(fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			ext := strings.ToLower(filepath.Ext(path))
			if ext == ".html" || ext == ".htm" {
				files = append(files, path)
			}
		}
		return nil
	})
	return files, err
}
