package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/lineage-bridge/internal/provenance"
	"github.com/danielpatrickdp/lineage-bridge/internal/rpc"
)

var (
	queryStage    string
	queryStations []string
	queryStart    string
	queryEnd      string
	queryExcluded []string
	queryTimeout  time.Duration
	chainDepth    int
)

// #region commands
var detectionsCmd = &cobra.Command{
	Use:   "detections [detection-id...]",
	Short: "Resolve detections by id, or by --station and time window",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dialService()
		if err != nil {
			return err
		}
		defer c.Close()
		ctx, cancel := withTimeout(cmd)
		defer cancel()

		if len(queryStations) > 0 {
			start, end, err := window()
			if err != nil {
				return err
			}
			excluded, err := parseIDs(queryExcluded)
			if err != nil {
				return err
			}
			dets, err := c.FindDetectionsByStationsAndTime(ctx, queryStations, start, end, queryStage, excluded)
			if err != nil {
				return err
			}
			return printJSON(cmd, dets)
		}
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		dets, err := c.FindDetectionsByIDs(ctx, ids, queryStage)
		if err != nil {
			return err
		}
		return printJSON(cmd, dets)
	},
}

var hypothesesCmd = &cobra.Command{
	Use:   "hypotheses <hypothesis-id...>",
	Short: "Rebuild hypotheses at the stage each was created for",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		c, err := dialService()
		if err != nil {
			return err
		}
		defer c.Close()
		ctx, cancel := withTimeout(cmd)
		defer cancel()
		hyps, err := c.FindHypothesesByIDs(ctx, ids)
		if err != nil {
			return err
		}
		return printJSON(cmd, hyps)
	},
}

var filtersCmd = &cobra.Command{
	Use:   "filters <hypothesis-id...>",
	Short: "Show the filter ids recorded per usage for each hypothesis",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		c, err := dialService()
		if err != nil {
			return err
		}
		defer c.Close()
		ctx, cancel := withTimeout(cmd)
		defer cancel()
		recs, partial, err := c.FindFilterRecords(ctx, ids)
		if err != nil {
			return err
		}
		return printJSON(cmd, rpc.FilterRecordsResponse{Records: recs, Partial: partial})
	},
}

var chainCmd = &cobra.Command{
	Use:   "chain <hypothesis-id>",
	Short: "Walk the lineage log from a hypothesis back to its root",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		l, err := provenance.Open(cfg.LineageLogDatabase)
		if err != nil {
			return err
		}
		defer l.Close()
		chain, err := l.Chain(cmd.Context(), args[0], chainDepth)
		if err != nil {
			return err
		}
		if len(chain) == 0 {
			return fmt.Errorf("hypothesis %s is not in the lineage log", args[0])
		}
		return printJSON(cmd, chain)
	},
}

func init() {
	for _, c := range []*cobra.Command{detectionsCmd, hypothesesCmd, filtersCmd} {
		c.Flags().DurationVar(&queryTimeout, "timeout", 30*time.Second, "request timeout")
	}
	detectionsCmd.Flags().StringVarP(&queryStage, "stage", "s", "", "stage to resolve at")
	detectionsCmd.Flags().StringSliceVar(&queryStations, "station", nil, "reference station (repeatable)")
	detectionsCmd.Flags().StringVar(&queryStart, "start", "", "window start, RFC3339")
	detectionsCmd.Flags().StringVar(&queryEnd, "end", "", "window end, RFC3339")
	detectionsCmd.Flags().StringSliceVar(&queryExcluded, "exclude", nil, "detection id to leave out (repeatable)")
	_ = detectionsCmd.MarkFlagRequired("stage")
	chainCmd.Flags().IntVar(&chainDepth, "depth", 16, "maximum chain length")
}

// #endregion commands

// #region helpers
func dialService() (*rpc.Client, error) {
	addr := remoteAddr
	if addr == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		addr = cfg.GRPC.Addr
	}
	return rpc.NewClient(addr)
}

func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), queryTimeout)
}

func window() (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, queryStart)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, queryEnd)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--end: %w", err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("--end %s is before --start %s", queryEnd, queryStart)
	}
	return start, end, nil
}

func parseIDs(in []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(in))
	for _, s := range in {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("id %q: %w", s, err)
		}
		out = append(out, id)
	}
	return out, nil
}

// #endregion helpers
