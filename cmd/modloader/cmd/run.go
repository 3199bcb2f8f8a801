package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/modloader"
	"github.com/GoCodeAlone/modloader/managers"
)

// runSummary is printed by run once the wizard steps requested by flags finish.
type runSummary struct {
	Order     []string                 `json:"order"`
	Materials int                      `json:"materials,omitempty"`
	Processes int                      `json:"processes,omitempty"`
	Deck      *managers.GenerateResult `json:"deck,omitempty"`
}

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load every module and keep serving until interrupted",
		Long: `Load and initialize every manager module in dependency order.

With --materials the wizard is driven end to end: the spreadsheet is uploaded,
materials are grouped into processes and a slide deck is written to --output.

Examples:
  modloader run --config modloader.yaml
  modloader run --materials materials.csv --group-by area --output deck.json --once`,
		Args: cobra.NoArgs,
		RunE: runRun,
	}

	cmd.Flags().StringP("materials", "m", "", "Spreadsheet to upload after loading")
	cmd.Flags().StringP("group-by", "g", managers.GroupByItem, "Material column to group processes by (item or area)")
	cmd.Flags().StringP("output", "o", "deck.json", "Slide deck file written after grouping")
	cmd.Flags().String("title", "", "Slide deck title")
	cmd.Flags().Bool("once", false, "Exit after loading instead of waiting for a signal")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	materials, _ := cmd.Flags().GetString("materials")
	groupBy, _ := cmd.Flags().GetString("group-by")
	output, _ := cmd.Flags().GetString("output")
	title, _ := cmd.Flags().GetString("title")
	once, _ := cmd.Flags().GetBool("once")

	a, err := newApp(configPath(cmd), cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := func() error {
		if err := a.start(ctx); err != nil {
			return err
		}
		summary, err := a.wizard(ctx, materials, groupBy, output, title)
		if err != nil {
			return err
		}
		if err := writeJSON(cmd, summary); err != nil {
			return err
		}
		if once {
			return nil
		}
		a.logger.Info("Running, press Ctrl+C to stop")
		<-ctx.Done()
		return nil
	}()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return errors.Join(runErr, a.stop(shutdownCtx))
}

// wizard runs the upload, grouping and slide steps when materials is set.
func (a *app) wizard(ctx context.Context, materials, groupBy, output, title string) (runSummary, error) {
	order, err := a.registry.Order()
	if err != nil {
		return runSummary{}, err
	}
	summary := runSummary{Order: order}
	if materials == "" {
		return summary, nil
	}

	upload, err := modloader.Get[*managers.UploadManager](ctx, a.registry, managers.UploadName)
	if err != nil {
		return summary, err
	}
	count, err := upload.Upload(ctx, materials, nil)
	if err != nil {
		return summary, err
	}
	summary.Materials = count

	processes, err := modloader.Get[*managers.ProcessGroupingManager](ctx, a.registry, managers.ProcessesName)
	if err != nil {
		return summary, err
	}
	grouped, err := processes.GroupBy(groupBy)
	if err != nil {
		return summary, err
	}
	summary.Processes = len(grouped)

	slides, err := modloader.Get[*managers.SlideManager](ctx, a.registry, managers.SlidesName)
	if err != nil {
		return summary, err
	}
	result, err := slides.Generate(ctx, managers.GenerateRequest{Title: title, Filename: output}, func(done, total int64) {
		a.logger.Debug("Generating slides", "done", done, "total", total)
	})
	if err != nil {
		return summary, err
	}
	summary.Deck = &result
	return summary, nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
