package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/historyhub/internal/llm"
	"github.com/nikhilbhutani/historyhub/pkg/tokenizer"
)

func newModelsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Browse the model catalog",
	}
	cmd.AddCommand(newModelsListCommand(opts))
	cmd.AddCommand(newModelsCostCommand(opts))
	return cmd
}

func (o *RootOptions) catalog() (*llm.Catalog, error) {
	return llm.Load(o.cfg.Catalog.Path)
}

func newModelsListCommand(opts *RootOptions) *cobra.Command {
	var provider, typ string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := opts.catalog()
			if err != nil {
				return err
			}

			models := []llm.Model{}
			for _, m := range catalog.List() {
				if provider != "" && m.Provider != provider {
					continue
				}
				if typ != "" && m.Type != typ {
					continue
				}
				models = append(models, m)
			}

			if opts.Format == "json" {
				return printJSON(cmd.OutOrStdout(), models)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPROVIDER\tTYPE\tCONTEXT\tINPUT/1M\tOUTPUT/1M")
			for _, m := range models {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2f\t%.2f\n",
					m.ID, m.Provider, m.Type, m.ContextWindow, m.InputPer1M, m.OutputPer1M)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "only models from this provider")
	cmd.Flags().StringVar(&typ, "type", "", "only models of this type (chat|embedding|transcription)")
	return cmd
}

func newModelsCostCommand(opts *RootOptions) *cobra.Command {
	var input, output int
	var inputFile string
	var audioSeconds float64

	cmd := &cobra.Command{
		Use:   "cost <model-id>",
		Short: "Estimate the cost of a request in USD",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := opts.catalog()
			if err != nil {
				return err
			}

			id := args[0]
			if _, ok := catalog.Get(id); !ok {
				return fmt.Errorf("unknown model %q", id)
			}

			if inputFile != "" {
				if cmd.Flags().Changed("input") {
					return fmt.Errorf("--input and --input-file are mutually exclusive")
				}
				data, err := os.ReadFile(inputFile)
				if err != nil {
					return fmt.Errorf("read input file: %w", err)
				}
				input = tokenizer.Estimate(string(data))
			}

			cost := catalog.Cost(id, input, output)
			if audioSeconds > 0 {
				cost += catalog.AudioCost(id, audioSeconds)
			}

			if opts.Format == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"model":         id,
					"input_tokens":  input,
					"output_tokens": output,
					"audio_seconds": audioSeconds,
					"cost_usd":      cost,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "$%.6f\n", cost)
			return nil
		},
	}

	cmd.Flags().IntVar(&input, "input", 0, "input tokens")
	cmd.Flags().StringVar(&inputFile, "input-file", "", "estimate input tokens from a text file")
	cmd.Flags().IntVar(&output, "output", 0, "output tokens")
	cmd.Flags().Float64Var(&audioSeconds, "audio-seconds", 0, "seconds of transcribed audio")
	return cmd
}
