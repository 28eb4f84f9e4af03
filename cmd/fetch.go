package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bnema/valuation-session-cli/internal/domain"
)

func newFetchCmd(app *app) *cobra.Command {
	var noRefresh bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "fetch <entity-id>",
		Short: "Fetch a valuation, serving from the session cache when possible",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, app, domain.EntityID(args[0]), noRefresh, asJSON)
		},
	}

	cmd.Flags().BoolVar(&noRefresh, "no-refresh", false, "Serve only from the local cache, never hit the engine")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

func runFetch(cmd *cobra.Command, app *app, id domain.EntityID, noRefresh, asJSON bool) error {
	if noRefresh {
		result, err := app.fetch.Cached(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("no usable cached session for %q: %w", id, err)
		}
		return writeSnapshot(cmd, result.Snapshot, true, asJSON)
	}

	var snapshot domain.Snapshot
	var fromCache bool
	get := func(ctx context.Context) error {
		var err error
		snapshot, fromCache, err = app.fetch.Get(ctx, id)
		return err
	}

	if asJSON {
		if err := get(cmd.Context()); err != nil {
			return err
		}
	} else {
		if err := runFetchSpinner(cmd.Context(), cmd.ErrOrStderr(), get); err != nil {
			return err
		}
	}

	return writeSnapshot(cmd, snapshot, fromCache, asJSON)
}

type snapshotView struct {
	EntityID  string                  `json:"entity_id"`
	Version   string                  `json:"version"`
	CachedAt  time.Time               `json:"cached_at"`
	ExpiresAt time.Time               `json:"expires_at"`
	FromCache bool                    `json:"from_cache"`
	Complete  bool                    `json:"complete"`
	CompanyID string                  `json:"company_id,omitempty"`
	Step      int                     `json:"step,omitempty"`
	Answers   map[string]string       `json:"answers,omitempty"`
	Result    *domain.ValuationResult `json:"result,omitempty"`
}

func writeSnapshot(cmd *cobra.Command, snapshot domain.Snapshot, fromCache, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(snapshotView{
			EntityID:  string(snapshot.EntityID),
			Version:   snapshot.Version,
			CachedAt:  snapshot.CachedAt,
			ExpiresAt: snapshot.ExpiresAt,
			FromCache: fromCache,
			Complete:  snapshot.Complete(),
			CompanyID: snapshot.Payload.CompanyID,
			Step:      snapshot.Payload.Step,
			Answers:   snapshot.Payload.Answers,
			Result:    snapshot.Payload.Result,
		})
	}

	out := cmd.OutOrStdout()
	source := "engine"
	if fromCache {
		source = "cache"
	}
	fmt.Fprintf(out, "%s (%s)\n", snapshot.EntityID, source)
	fmt.Fprintf(out, "  version: %s\n", snapshot.Version)

	if result := snapshot.Payload.Result; result != nil {
		fmt.Fprintf(out, "  equity value: %d\n", result.EquityValue)
		fmt.Fprintf(out, "  range: %d - %d\n", result.RangeMin, result.RangeMax)
		fmt.Fprintf(out, "  confidence: %.2f\n", result.ConfidenceScore)
		if result.Methodology != "" {
			fmt.Fprintf(out, "  methodology: %s\n", result.Methodology)
		}
	} else {
		fmt.Fprintf(out, "  incomplete: %d answers recorded\n", len(snapshot.Payload.Answers))
	}

	return nil
}
