package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/livewatch-cli/livewatch/icon"
	"github.com/livewatch-cli/livewatch/key"
	"github.com/livewatch-cli/livewatch/lifecycle"
	"github.com/livewatch-cli/livewatch/log"
	"github.com/livewatch-cli/livewatch/metrics"
	"github.com/livewatch-cli/livewatch/player"
	"github.com/livewatch-cli/livewatch/prefs"
	"github.com/livewatch-cli/livewatch/quality"
	"github.com/livewatch-cli/livewatch/style"
	"github.com/livewatch-cli/livewatch/trigger"
	"github.com/livewatch-cli/livewatch/tui"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

const (
	metricsReadHeaderTimeout = 5 * time.Second
	metricsShutdownTimeout   = 5 * time.Second
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringP("quality", "q", "", `Initial quality: "auto", "auto(N)" or a tier index`)
	watchCmd.Flags().String("stream", "", "Name the stream's preferences are saved under. Defaults to its sources")
	watchCmd.Flags().String("wid", "", "Native window id to render into")
	watchCmd.Flags().Int("width", 0, "Surface width in pixels")
	watchCmd.Flags().Int("height", 0, "Surface height in pixels")
	watchCmd.Flags().String("render", player.RenderContain.String(), "How the video fits the surface: contain, cover or fill")
	lo.Must0(watchCmd.RegisterFlagCompletionFunc("render", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{player.RenderContain.String(), player.RenderCover.String(), player.RenderFill.String()}, cobra.ShellCompDirectiveDefault
	}))
	watchCmd.Flags().Bool("hidden", false, "Start hidden. Playback begins once SIGUSR1 marks the surface visible")
	watchCmd.Flags().Bool("muted", false, "Start muted")
	watchCmd.Flags().Bool("plain", false, "Print status lines instead of the dashboard")
	watchCmd.Flags().String("snapshot-dir", "", "Write the freeze frame into this directory whenever playback stops")

	watchCmd.Flags().Duration("retry-delay", 0, "Pause between a failed attempt and the next one")
	lo.Must0(viper.BindPFlag(key.PlayerRetryDelay, watchCmd.Flags().Lookup("retry-delay")))

	watchCmd.Flags().Duration("attempt-timeout", 0, "Time to wait for the first frame")
	lo.Must0(viper.BindPFlag(key.PlayerAttemptTimeout, watchCmd.Flags().Lookup("attempt-timeout")))

	watchCmd.Flags().Int("max-retries", 0, "Retries before the stream is marked unavailable. Negative retries forever")
	lo.Must0(viper.BindPFlag(key.PlayerMaxRetries, watchCmd.Flags().Lookup("max-retries")))

	watchCmd.Flags().Float64("volume", 0, "User volume from 0 to 1")
	lo.Must0(viper.BindPFlag(key.VolumeUser, watchCmd.Flags().Lookup("volume")))

	watchCmd.Flags().String("metrics", "", `Serve Prometheus metrics on this address, e.g. ":9090"`)
	lo.Must0(viper.BindPFlag(key.MetricsAddress, watchCmd.Flags().Lookup("metrics")))
}

var watchCmd = &cobra.Command{
	Use:   "watch tier=url...",
	Short: "Play a live stream and keep it playing",
	Long: `Play a live stream given as one URL per quality tier, higher tiers meaning better quality.
The player is recreated whenever it stops, fails or the quality changes, and retried after failures.`,
	Example: `  livewatch watch 0=https://example.com/360p.m3u8 1=https://example.com/720p.m3u8
  livewatch watch -q 1 --max-retries -1 --metrics :9090 0=https://example.com/live.m3u8`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		binary := viper.GetString(key.PlayerBinary)
		CheckDependencies(binary)

		sources, err := quality.ParseSources(args)
		handleErr(err)

		highest, ok := sources.Highest()
		if !ok {
			handleErr(errors.New("no usable sources given"))
		}

		stream := lo.Must(cmd.Flags().GetString("stream"))
		if stream == "" {
			stream = sources.Key()
		}

		pref, err := prefs.Get(stream)
		if err != nil {
			log.Warnf("load preferences: %v", err)
		}

		sel, err := initialSelection(cmd, pref, highest)
		handleErr(err)

		mode, err := player.ParseRenderMode(lo.Must(cmd.Flags().GetString("render")))
		handleErr(err)

		user, master := pref.UserVolume, pref.MasterVolume
		if cmd.Flags().Changed("volume") {
			user = viper.GetFloat64(key.VolumeUser)
		}

		plain := lo.Must(cmd.Flags().GetBool("plain")) || !term.IsTerminal(int(os.Stdout.Fd()))
		muted := lo.Must(cmd.Flags().GetBool("muted"))
		snapshotDir := lo.Must(cmd.Flags().GetString("snapshot-dir"))

		store := trigger.NewStore(trigger.Snapshot{Visible: !lo.Must(cmd.Flags().GetBool("hidden"))})
		factory := player.NewFactory(binary, player.Options{
			LowLatency:   viper.GetBool(key.PlayerLowLatency),
			MaxLatency:   viper.GetDuration(key.PlayerMaxLatency),
			LogVerbosity: viper.GetString(key.PlayerLogVerbosity),
		})

		events := make(chan tui.Event, 16)
		notify := func(i icon.Icon, format string, args ...any) {
			text := fmt.Sprintf(format, args...)
			if plain {
				fmt.Printf("%s %s %s\n", style.Faint(time.Now().Format(time.TimeOnly)), icon.Get(i), text)
				return
			}

			select {
			case events <- tui.Event{Icon: i, Text: text}:
			default:
			}
		}

		var ctrl *lifecycle.Controller
		ctrl, err = lifecycle.New(lifecycle.Options{
			Surface: player.Surface{
				ID:     lo.Must(cmd.Flags().GetString("wid")),
				Width:  lo.Must(cmd.Flags().GetInt("width")),
				Height: lo.Must(cmd.Flags().GetInt("height")),
			},
			Sources:   sources,
			Selection: sel,
			Triggers:  store,
			Factory:   factory,
			Config:    lifecycle.ConfigFromViper(),
			Callbacks: lifecycle.Callbacks{
				OnPlay: func() {
					notify(icon.Play, "playing quality %s", ctrl.Status().Selection)
				},
				OnStop: func() {
					notify(icon.Stop, "stopped")
					if snapshotDir == "" {
						return
					}

					path, err := ctrl.SaveSnapshot(snapshotDir)
					if err != nil {
						log.Warnf("save freeze frame: %v", err)
						return
					}
					notify(icon.Freeze, "freeze frame saved to %s", path)
				},
				OnError: func(err error) {
					notify(icon.Fail, "%v", err)
				},
				OnUnavailable: func() {
					notify(icon.Halt, "stream unavailable, press play or toggle visibility to try again")
				},
				OnQuality: func(sel quality.Selection) {
					notify(icon.Quality, "quality %s", sel)
					if !viper.GetBool(key.QualityRemember) {
						return
					}
					if err := prefs.SaveQuality(stream, sel); err != nil {
						log.Warnf("save quality: %v", err)
					}
				},
			},
		})
		handleErr(err)
		handleErr(ctrl.SetRenderMode(mode))

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		g, gctx := errgroup.WithContext(ctx)
		handleErr(ctrl.Init(gctx))

		if !muted {
			handleErr(ctrl.ResumeWithVolume(user, master))
		}
		handleErr(ctrl.RequestPlay())

		g.Go(func() error {
			<-gctx.Done()
			return ctrl.Close()
		})

		g.Go(func() error {
			watchVisibility(gctx, store)
			return nil
		})

		if addr := viper.GetString(key.MetricsAddress); addr != "" {
			serveMetrics(gctx, g, addr)
			notify(icon.Success, "metrics on %s/metrics", addr)
		}

		g.Go(func() error {
			defer cancel()

			if plain {
				<-gctx.Done()
				return nil
			}

			return tui.Run(gctx, &tui.Options{
				Stream:       stream,
				Controller:   ctrl,
				Triggers:     store,
				Sources:      sources,
				RenderMode:   mode,
				UserVolume:   user,
				MasterVolume: master,
				Muted:        muted,
				OnVolume: func(user, master float64) {
					if err := prefs.SaveVolume(stream, user, master); err != nil {
						log.Warnf("save volume: %v", err)
					}
				},
				Events: events,
			})
		})

		handleErr(g.Wait())
	},
}

// initialSelection picks the flag, then the remembered preference, then the configured default.
func initialSelection(cmd *cobra.Command, pref prefs.Preference, highest quality.Tier) (quality.Selection, error) {
	raw := viper.GetString(key.QualityDefault)

	if viper.GetBool(key.QualityRemember) && pref.Quality != "" {
		raw = pref.Quality
	}

	if cmd.Flags().Changed("quality") {
		raw = lo.Must(cmd.Flags().GetString("quality"))
	}

	return quality.ParseSelection(raw, highest)
}

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           metricsMux(),
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
