package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/livewatch-cli/livewatch/color"
	"github.com/livewatch-cli/livewatch/icon"
	"github.com/livewatch-cli/livewatch/network"
	"github.com/livewatch-cli/livewatch/quality"
	"github.com/livewatch-cli/livewatch/style"
	"github.com/livewatch-cli/livewatch/util"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func init() {
	rootCmd.AddCommand(probeCmd)
}

var errProbeFailed = errors.New("probe failed")

// probeCmd checks every tier's URL before handing the sources to watch.
var probeCmd = &cobra.Command{
	Use:   "probe tier=url...",
	Short: "Check that every quality tier of a stream is reachable",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sources, err := quality.ParseSources(args)
		handleErr(err)

		tiers := sources.Tiers()
		results := make([]network.Result, len(tiers))
		errs := make([]error, len(tiers))

		g, ctx := errgroup.WithContext(cmd.Context())
		g.SetLimit(4)
		for i, tier := range tiers {
			i := i
			url, _ := sources.Resolve(tier)
			g.Go(func() error {
				results[i], errs[i] = network.Probe(ctx, network.Client, url)
				return nil
			})
		}
		_ = g.Wait()

		for i, tier := range tiers {
			label := style.Fg(color.Purple)(fmt.Sprintf("tier %d", tier))
			if errs[i] != nil {
				fmt.Printf("%s %s %s\n", style.Fg(color.Red)(icon.Get(icon.Fail)), label, errs[i])
				continue
			}

			kind := "media"
			if results[i].Playlist {
				kind = "playlist"
			}
			fmt.Printf(
				"%s %s %s %s\n",
				style.Fg(color.Green)(icon.Get(icon.Success)),
				label,
				kind,
				style.Faint(fmt.Sprintf("%d in %s", results[i].Status, results[i].Latency.Round(time.Millisecond))),
			)
		}

		if failed := lo.CountBy(errs, func(err error) bool { return err != nil }); failed > 0 {
			handleErr(fmt.Errorf("%w: %s unreachable", errProbeFailed, util.Quantify(failed, "source", "sources")))
		}
	},
}
