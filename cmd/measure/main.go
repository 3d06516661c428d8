package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/histoforge/boundary-measure/core"
	"github.com/histoforge/boundary-measure/internal/config"
	"github.com/histoforge/boundary-measure/internal/logging"
	"github.com/histoforge/boundary-measure/kb"
	"github.com/histoforge/boundary-measure/model"
)

func main() {
	studyPath := flag.String("study", "", "path to the study JSON document (required)")
	configPath := flag.String("config", "", "path to the engine YAML config (optional)")
	outPath := flag.String("out", "-", "output path, or - for stdout")
	format := flag.String("format", "json", "output format: json or csv")
	workers := flag.Int("workers", 0, "per-detection parallelism override (0 = one per CPU)")

	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	if *studyPath == "" {
		fatal(ctx, log, "missing -study flag", nil)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fatal(ctx, log, "load config", err)
		}
		cfg = loaded
	}

	store := kb.NewStudyStore()

	f, err := os.Open(*studyPath)
	if err != nil {
		fatal(ctx, log, "open study", err)
	}
	summary, err := core.LoadStudy(store, f)
	f.Close()
	if err != nil {
		fatal(ctx, log, "load study", err)
	}
	if cfg.PixelSizeUm > 0 {
		if err := store.SetPixelSize(cfg.PixelSizeUm); err != nil {
			fatal(ctx, log, "apply pixel size override", err)
		}
	}

	log.Info(ctx, "study loaded",
		logging.Int("detections", len(summary.DetectionIDs)),
		logging.Int("groups", len(summary.GroupLabels)),
		logging.Int("polygons", summary.Polygons),
		logging.Float64("pixel_size", store.PixelSize()),
	)

	svc := core.NewMeasurementService(store)
	svc.Unit = cfg.Unit
	svc.Workers = cfg.Workers
	if *workers > 0 {
		svc.Workers = *workers
	}
	svc.Log = log
	for _, g := range cfg.Groups {
		svc.Groups = append(svc.Groups, core.GroupSpec{Label: g.Label, Color: g.Color})
	}

	runID, records, err := svc.Run(ctx)
	if err != nil {
		fatal(ctx, log, "measurement run", err)
	}

	out := io.Writer(os.Stdout)
	if *outPath != "-" {
		of, err := os.Create(*outPath)
		if err != nil {
			fatal(ctx, log, "create output file", err)
		}
		defer of.Close()
		out = of
	}

	switch *format {
	case "json":
		err = writeJSON(out, runID, records)
	case "csv":
		err = writeCSV(out, records)
	default:
		fatal(ctx, log, fmt.Sprintf("unknown format %q (want json or csv)", *format), nil)
	}
	if err != nil {
		fatal(ctx, log, "write output", err)
	}
}

func writeJSON(w io.Writer, runID string, records []model.Measurement) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		RunID   string              `json:"run_id"`
		Records []model.Measurement `json:"records"`
	}{RunID: runID, Records: records})
}

func writeCSV(w io.Writer, records []model.Measurement) error {
	cw := csv.NewWriter(w)
	header := []string{
		"detection_id", "detection_name", "group",
		"closest_x", "closest_y", "distance_px", "distance", "unit", "color",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.DetectionID,
			r.DetectionName,
			r.Group,
			formatFloat(r.Closest.X),
			formatFloat(r.Closest.Y),
			formatFloat(r.DistancePx),
			formatFloat(r.Distance),
			r.Unit,
			r.Color,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func fatal(ctx context.Context, log logging.Logger, msg string, err error) {
	if err != nil {
		log.Error(ctx, msg, logging.String("error", err.Error()))
	} else {
		log.Error(ctx, msg)
	}
	os.Exit(1)
}
