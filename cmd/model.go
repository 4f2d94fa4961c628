package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/agvkernel/core/plantmodel"
	"github.com/kilianp07/agvkernel/infra/persistence"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Plant model commands",
}

var modelValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a YAML or JSON plant model",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelValidate,
}

var modelImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Store a plant model in the configured persister",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelImport,
}

var modelExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write the persisted plant model to a YAML or JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelExport,
}

func init() {
	modelCmd.AddCommand(modelValidateCmd, modelImportCmd, modelExportCmd)
	rootCmd.AddCommand(modelCmd)
}

func runModelValidate(cmd *cobra.Command, args []string) error {
	m, err := persistence.ReadModelFile(args[0])
	if err != nil {
		return err
	}
	if err := plantmodel.Validate(m); err != nil {
		return fmt.Errorf("model %q: %w", m.Name, err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "model %q: %d points, %d paths, %d locations, %d vehicles\n",
		m.Name, len(m.Points), len(m.Paths), len(m.Locations), len(m.Vehicles))
	return err
}

func runModelImport(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	m, err := persistence.ReadModelFile(args[0])
	if err != nil {
		return err
	}
	if err := plantmodel.Validate(m); err != nil {
		return fmt.Errorf("model %q: %w", m.Name, err)
	}
	p, err := persistence.New(cfg.Persistence)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("no persistence configured")
	}
	defer closeQuietly(p)

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	if err := p.SaveModel(ctx, m); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported model %q into %s\n", m.Name, cfg.Persistence.Type)
	return err
}

func runModelExport(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	p, err := persistence.New(cfg.Persistence)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("no persistence configured")
	}
	defer closeQuietly(p)

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	m, err := p.LoadModel(ctx)
	if err != nil {
		return err
	}
	out, err := persistence.NewFilePersister(args[0])
	if err != nil {
		return err
	}
	if err := out.SaveModel(ctx, m); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "exported model %q to %s\n", m.Name, args[0])
	return err
}

func closeQuietly(v any) {
	if c, ok := v.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}
