package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var vocabCmd = &cobra.Command{
	Use:   "vocab",
	Short: "Print the effective tag vocabulary",
	Long:  "Prints the tag vocabulary after config, environment, and vocabulary file are applied, as YAML usable with --vocabulary.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if file, _ := cmd.Flags().GetString("vocabulary"); file != "" {
			cfg.Vocabulary.File = file
		}
		_, vocab, err := initMatcher()
		if err != nil {
			return err
		}

		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(vocab); err != nil {
			return eris.Wrap(err, "vocab: encode")
		}
		return eris.Wrap(enc.Close(), "vocab: flush")
	},
}

func init() {
	vocabCmd.Flags().String("vocabulary", "", "YAML file layered over the tag vocabulary")
	rootCmd.AddCommand(vocabCmd)
}
