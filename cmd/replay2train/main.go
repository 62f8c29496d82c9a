// Command replay2train converts replay and self-play Parquet files into
// training rows for the policy model.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/brensch/snekgrid/config"
	"github.com/brensch/snekgrid/training"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fset := flag.NewFlagSet("replay2train", flag.ExitOnError)
	inDir := fset.String("in-dir", "", "Directory containing replay Parquet files (default <data-dir>)")
	outDir := fset.String("out-dir", "", "Output directory for training Parquet (default <data-dir>/train)")
	clean := fset.Bool("clean", false, "Remove existing .parquet files from out-dir first")
	cfg, err := config.Load(fset, args)
	if err != nil {
		return err
	}
	logger := cfg.Logger(os.Stderr)
	if *inDir == "" {
		*inDir = cfg.DataDir
	}
	if *outDir == "" {
		*outDir = filepath.Join(cfg.DataDir, "train")
	}

	absIn, err := filepath.Abs(*inDir)
	if err != nil {
		return err
	}
	absOut, err := filepath.Abs(*outDir)
	if err != nil {
		return err
	}
	if absIn == absOut {
		return errors.New("out-dir must be different from in-dir")
	}
	if err := os.MkdirAll(absOut, 0o755); err != nil {
		return fmt.Errorf("create out-dir: %w", err)
	}
	if *clean {
		_ = filepath.WalkDir(absOut, func(path string, d fs.DirEntry, err error) error {
			if err == nil && !d.IsDir() && strings.HasSuffix(strings.ToLower(d.Name()), ".parquet") {
				_ = os.Remove(path)
			}
			return nil
		})
	}

	inputs := findInputs(absIn, absOut)
	if len(inputs) == 0 {
		return fmt.Errorf("no parquet inputs found in %s", absIn)
	}

	w, h := cfg.Game.Width, cfg.Game.Height
	convertedFiles, totalRows := 0, 0
	for _, inPath := range inputs {
		base := filepath.Base(inPath)
		outPath := filepath.Join(absOut, strings.TrimSuffix(base, filepath.Ext(base))+".train.parquet")
		n, err := training.ConvertFile(inPath, outPath, w, h)
		if err != nil {
			logger.Error("convert failed", "file", inPath, "error", err)
			continue
		}
		if n > 0 {
			convertedFiles++
			totalRows += n
			logger.Debug("converted", "file", inPath, "rows", n)
		}
	}
	if convertedFiles == 0 {
		return fmt.Errorf("no output written (no %dx%d rows)", w, h)
	}
	logger.Info("conversion done", "inputs", len(inputs), "files", convertedFiles, "rows", totalRows, "out_dir", absOut)
	return nil
}

// findInputs lists Parquet files under root, skipping tmp dirs and the
// output dir.
func findInputs(root, outDir string) []string {
	var inputs []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == "tmp" || path == outDir {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(strings.ToLower(d.Name()), ".parquet") {
			inputs = append(inputs, path)
		}
		return nil
	})
	return inputs
}
