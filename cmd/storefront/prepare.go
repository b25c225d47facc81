package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"storefront/internal/codec"
	"storefront/internal/config"
	"storefront/internal/objectstore"
	"storefront/internal/pipeline"
	"storefront/internal/preparer"
)

func newPrepareCommand(opts *rootOptions) *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "prepare <files...>",
		Short: "Normalize photos the way uploads are normalized",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			popts, err := mediaOptions(cfg.Media)
			if err != nil {
				return err
			}
			p, err := preparer.New(preparer.Config{Options: popts, Concurrency: cfg.Media.Concurrency})
			if err != nil {
				return err
			}
			if err := objectstore.EnsureDir(outDir); err != nil {
				return err
			}

			raws := make([]preparer.RawImage, len(args))
			for i, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				raws[i] = preparer.RawImage{Data: data, MIME: codec.DetectMIME(data)}
			}

			failed := 0
			out := cmd.OutOrStdout()
			for _, res := range p.PrepareAll(cmd.Context(), args, raws) {
				if res.Err != nil {
					failed++
					fmt.Fprintf(out, "%s: %v\n", res.Name, res.Err)
					continue
				}
				base := strings.TrimSuffix(filepath.Base(res.Name), filepath.Ext(res.Name))
				dst := filepath.Join(outDir, base+"."+string(popts.Format))
				if err := objectstore.AtomicWrite(dst, bytes.NewReader(res.Asset.Data)); err != nil {
					return err
				}
				fmt.Fprintf(out, "%s -> %s (%dx%d, %d bytes)\n", res.Name, dst, res.Asset.Width, res.Asset.Height, res.Asset.Size())
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d photo(s) could not be prepared", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "prepared", "output directory")
	return cmd
}

func mediaOptions(m config.MediaConfig) (pipeline.Options, error) {
	format, err := pipeline.ParseFormat(m.Format)
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.Options{
		MaxWidth: m.MaxWidth,
		Quality:  m.Quality,
		Format:   format,
		MaxBytes: m.MaxBytes,
	}, nil
}
