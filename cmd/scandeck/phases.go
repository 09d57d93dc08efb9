package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hakim/scandeck/internal/models"
	"github.com/hakim/scandeck/internal/pipeline"
)

var phasesCmd = &cobra.Command{
	Use:   "phases [kind]",
	Short: "List the phases each scan kind runs",
	Long: `Print the phase template of every scan kind, or of the given kind only.

Kinds: basic (alias quick), comprehensive (alias full, advanced),
subdomain (alias subdomains, enum).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		templates := pipeline.Templates()
		if len(args) == 1 {
			kind, ok := models.ParseKind(args[0])
			if !ok {
				return fmt.Errorf("%w %q", pipeline.ErrUnknownKind, args[0])
			}
			tmpl, err := pipeline.GetTemplate(kind)
			if err != nil {
				return err
			}
			templates = []pipeline.Template{tmpl}
		}

		for i, tmpl := range templates {
			if i > 0 {
				fmt.Println()
			}
			fmt.Printf("%s (%d phases)\n", tmpl.Kind, len(tmpl.Phases))
			fmt.Printf("  %s\n", tmpl.Description)
			for j, p := range tmpl.Phases {
				fmt.Printf("  %2d. %-28s %s\n", j+1, p.Name, p.Description)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(phasesCmd)
}
