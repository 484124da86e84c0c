package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"transit-topo/internal/gtfs"
	"transit-topo/internal/importer"
	"transit-topo/internal/ledger"
	"transit-topo/internal/publisher"
	"transit-topo/internal/topo"
)

type importFlags struct {
	producer    string
	input       string
	updateStops bool
	workers     int
}

func importCmd(a *app) *cobra.Command {
	var f importFlags
	cmd := &cobra.Command{
		Use:   "import-gtfs",
		Short: "Import the routes and stops of a GTFS feed",
		Long: `Import the routes and stops of a GTFS feed for a producer.

The producer is either an item id (Q42) or the exact label of a producer.
The feed is a zip file, an unpacked directory or an http(s) URL. Every
import creates a new data source; routes and stops already imported for
the producer are reused.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("update-stops") {
				a.cfg.UpdateStops = f.updateStops
			}
			if cmd.Flags().Changed("workers") {
				a.cfg.Workers = f.workers
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			return a.runImport(cmd.Context(), cmd.OutOrStdout(), f.producer, f.input)
		},
	}
	cmd.Flags().StringVarP(&f.producer, "producer", "p", "", "Producer id (Qxxx) or label")
	cmd.Flags().StringVarP(&f.input, "input-gtfs", "i", "", "GTFS zip file, directory or URL")
	cmd.Flags().BoolVar(&f.updateStops, "update-stops", false, "Refresh the claims of stops that already exist")
	cmd.Flags().IntVarP(&f.workers, "workers", "w", 1, "Records handled concurrently within a pass")
	_ = cmd.MarkFlagRequired("producer")
	_ = cmd.MarkFlagRequired("input-gtfs")
	return cmd
}

func (a *app) runImport(ctx context.Context, out io.Writer, producerRef, input string) error {
	feed, err := gtfs.Load(ctx, input)
	if err != nil {
		return fmt.Errorf("load gtfs: %w", err)
	}
	a.logger.Info("feed loaded", "source", feed.Source, "sha256", feed.SHA256,
		"routes", len(feed.Routes), "stops", len(feed.Stops), "trips", len(feed.Trips))

	sparql := a.sparqlClient()
	api, err := a.apiClient(ctx)
	if err != nil {
		return err
	}
	e, err := a.entities(ctx, sparql)
	if err != nil {
		return err
	}
	store := &topo.Store{
		Query:  topo.NewQuery(sparql, api, e, a.logger),
		Writer: topo.NewWriter(api, e, version, a.logger),
	}

	producerID, producerName, err := store.ResolveProducer(ctx, producerRef)
	if err != nil {
		return fmt.Errorf("resolve producer %q: %w", producerRef, err)
	}
	a.logger.Info("found the producer", "id", producerID, "label", producerName)

	var lg *ledger.Ledger
	if a.cfg.LedgerDSN != "" {
		lg, err = ledger.Open(ctx, a.cfg.LedgerDSN)
		if err != nil {
			return fmt.Errorf("open ledger: %w", err)
		}
		defer lg.Close()
		a.checkPreviousRun(ctx, lg, producerID, feed)
	}

	var observers []importer.Observer
	if a.metrics != nil {
		observers = append(observers, a.metrics)
	}
	var pub *publisher.NATSPublisher
	if a.cfg.NATSURL != "" {
		var pm publisher.PublisherMetrics
		if a.metrics != nil {
			pm = a.metrics
		}
		pub, err = publisher.NewNATSPublisher(a.cfg.NATSURL, a.cfg.NATSSubjectPrefix, a.cfg.LogLevel == "debug", pm)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer pub.Close()
		observers = append(observers, pub.ForProducer(producerID))
	}

	im := importer.New(store, e, importer.Options{
		UpdateStops: a.cfg.UpdateStops,
		Workers:     a.cfg.Workers,
		Observers:   observers,
		Logger:      a.logger,
	})

	a.logger.Info("starting the import", "producer", producerName, "workers", a.cfg.Workers, "update_stops", a.cfg.UpdateStops)
	started := time.Now()
	summary, runErr := im.Run(ctx, feed, importer.Producer{ID: producerID, Name: producerName})
	finished := time.Now()
	if a.metrics != nil {
		a.metrics.ObserveImport(finished.Sub(started), runErr)
	}

	run := newRun(producerID, producerName, feed, summary, runErr, started, finished)
	if lg != nil {
		if err := lg.RecordRun(ctx, run); err != nil {
			a.logger.Error("could not record the import run", "error", err)
		}
	}
	if pub != nil {
		if err := pub.PublishSummary(runSummary(run)); err != nil {
			a.logger.Warn("could not publish the run summary", "error", err)
		}
	}

	if runErr != nil {
		return fmt.Errorf("import %s: %w", feed.Source, runErr)
	}
	fmt.Fprintln(out, summary.DataSourceID)
	return nil
}

// checkPreviousRun logs when the feed is the one imported last time. The
// import still runs.
func (a *app) checkPreviousRun(ctx context.Context, lg *ledger.Ledger, producerID string, feed *gtfs.Feed) {
	prev, err := lg.LatestRun(ctx, producerID)
	switch {
	case errors.Is(err, ledger.ErrNoRuns):
		a.logger.Info("first recorded import for this producer")
	case err != nil:
		a.logger.Warn("could not read the previous import run", "error", err)
	case feed.SHA256 != "" && prev.SHA256 == feed.SHA256:
		a.logger.Info("feed unchanged since the previous import",
			"previous_run", prev.ID, "previous_data_source", prev.DataSourceID, "imported_at", prev.FinishedAt)
	}
}

func newRun(producerID, producerName string, feed *gtfs.Feed, s *importer.Summary, runErr error, started, finished time.Time) *ledger.Run {
	run := &ledger.Run{
		ID:           uuid.New(),
		ProducerID:   producerID,
		ProducerName: producerName,
		Source:       feed.Source,
		SHA256:       feed.SHA256,
		StartedAt:    started.UTC(),
		FinishedAt:   finished.UTC(),
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if s != nil {
		run.DataSourceID = s.DataSourceID
		run.RoutesCreated = s.RoutesCreated
		run.RoutesFound = s.RoutesFound
		run.StopsCreated = s.StopsCreated
		run.StopsFound = s.StopsFound
		run.StopsUpdated = s.StopsUpdated
		run.LinksAdded = s.LinksAdded
		run.LinksExisting = s.LinksExisting
		run.LinksSkipped = s.LinksSkipped
	}
	return run
}

func runSummary(r *ledger.Run) publisher.RunSummary {
	return publisher.RunSummary{
		RunID:         r.ID.String(),
		ProducerID:    r.ProducerID,
		ProducerName:  r.ProducerName,
		DataSourceID:  r.DataSourceID,
		Source:        r.Source,
		SHA256:        r.SHA256,
		RoutesCreated: r.RoutesCreated,
		RoutesFound:   r.RoutesFound,
		StopsCreated:  r.StopsCreated,
		StopsFound:    r.StopsFound,
		StopsUpdated:  r.StopsUpdated,
		LinksAdded:    r.LinksAdded,
		LinksExisting: r.LinksExisting,
		LinksSkipped:  r.LinksSkipped,
		Error:         r.Error,
		FinishedAt:    r.FinishedAt,
	}
}
