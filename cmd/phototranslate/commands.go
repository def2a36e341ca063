package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/adverant/nexus/phototranslate-worker/internal/langid"
	"github.com/adverant/nexus/phototranslate-worker/internal/processor"
	"github.com/adverant/nexus/phototranslate-worker/internal/queue"
	"github.com/adverant/nexus/phototranslate-worker/internal/voices"
	"github.com/spf13/cobra"
)

func newTranslateCmd() *cobra.Command {
	var (
		imageArg, from, to string
		display, viewport  string
		online, offline    bool
		showAll            bool
		timeout            time.Duration
	)

	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Recognize and translate the text in one photo",
		Long: `Run OCR, translation, geometry correction and overlay layout on one photo
and print the result as JSON.

Examples:
  phototranslate translate --image menu.jpg --from zh-CN --to en
  phototranslate translate --image sign.png --from de --to en --offline \
      --display 1080x1920 --viewport 390x844`,
		RunE: func(cmd *cobra.Command, args []string) error {
			pref, err := preferenceFlag(online, offline)
			if err != nil {
				return err
			}
			displaySize, err := parseSize(display)
			if err != nil {
				return err
			}
			vp, err := parseViewport(viewport)
			if err != nil {
				return err
			}
			data, url, err := imageSource(imageArg)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(timeout)
			defer cancel()

			core, err := buildCore(ctx, pref)
			if err != nil {
				return err
			}
			defer core.Close()

			result, err := core.Processor.Process(ctx, &processor.PhotoRequest{
				Image:          data,
				ImageURL:       url,
				SourceLanguage: from,
				TargetLanguage: to,
				DisplaySize:    displaySize,
				Viewport:       vp,
				ShowAll:        showAll,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&imageArg, "image", "", "image file or http(s) URL")
	cmd.Flags().StringVar(&from, "from", "", "source language code")
	cmd.Flags().StringVar(&to, "to", "", "target language code")
	cmd.Flags().StringVar(&display, "display", "", "displayed photo size WxH (default: processed size)")
	cmd.Flags().StringVar(&viewport, "viewport", "", "viewport size WxH for overlay layout")
	cmd.Flags().BoolVar(&online, "online", false, "force cloud engines")
	cmd.Flags().BoolVar(&offline, "offline", false, "force on-device engines")
	cmd.Flags().BoolVar(&showAll, "show-all", false, "lay out every box instead of the most salient")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall timeout")
	_ = cmd.MarkFlagRequired("image")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newPacksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "packs",
		Short: "Manage on-device language packs",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List installed language packs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(30 * time.Second)
			defer cancel()
			core, err := buildCore(ctx, "")
			if err != nil {
				return err
			}
			defer core.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LANGUAGE\tTESSDATA\tFILE PRESENT")
			for _, id := range core.Registry.InstalledSet() {
				present, err := core.Models.IsLanguageInstalled(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%t\n", id, id.Tesseract(), present)
			}
			return tw.Flush()
		},
	}

	install := &cobra.Command{
		Use:   "install LANG...",
		Short: "Download and register language packs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := langid.CanonicalizeAll(args)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(0)
			defer cancel()
			core, err := buildCore(ctx, "")
			if err != nil {
				return err
			}
			defer core.Close()

			for _, id := range ids {
				if err := core.Registry.Install(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "installed %s\n", id)
			}
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove LANG...",
		Short: "Delete and unregister language packs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := langid.CanonicalizeAll(args)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(5 * time.Minute)
			defer cancel()
			core, err := buildCore(ctx, "")
			if err != nil {
				return err
			}
			defer core.Close()

			for _, id := range ids {
				if err := core.Registry.Remove(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", id)
			}
			return nil
		},
	}

	baseline := &cobra.Command{
		Use:   "baseline",
		Short: "Install the configured baseline languages",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(0)
			defer cancel()
			core, err := buildCore(ctx, "")
			if err != nil {
				return err
			}
			defer core.Close()

			report := core.EnsureBaseline(ctx)
			if err := writeJSON(cmd.OutOrStdout(), map[string]interface{}{
				"installed": report.Installed,
				"present":   report.Present,
				"failed":    len(report.Failed),
			}); err != nil {
				return err
			}
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d baseline language(s) failed to install", len(report.Failed))
			}
			return nil
		},
	}

	cmd.AddCommand(list, install, remove, baseline)
	return cmd
}

func newEnqueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Submit tasks to the worker queue",
	}

	var (
		imageArg, from, to string
		display, viewport  string
		showAll            bool
	)
	photo := &cobra.Command{
		Use:   "photo",
		Short: "Enqueue a translate-photo task",
		RunE: func(cmd *cobra.Command, args []string) error {
			displaySize, err := parseSize(display)
			if err != nil {
				return err
			}
			vp, err := parseViewport(viewport)
			if err != nil {
				return err
			}
			data, url, err := imageSource(imageArg)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			enq, err := queue.NewEnqueuer(cfg.RedisURL, cfg.QueueName, cfg.ProcessingTimeout)
			if err != nil {
				return err
			}
			defer enq.Close()

			ctx, cancel := signalContext(30 * time.Second)
			defer cancel()
			jobID, err := enq.EnqueuePhoto(ctx, &queue.PhotoTaskPayload{
				Image:          data,
				ImageURL:       url,
				SourceLanguage: from,
				TargetLanguage: to,
				DisplaySize:    displaySize,
				Viewport:       vp,
				ShowAll:        showAll,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), jobID)
			return nil
		},
	}
	photo.Flags().StringVar(&imageArg, "image", "", "image file or http(s) URL")
	photo.Flags().StringVar(&from, "from", "", "source language code")
	photo.Flags().StringVar(&to, "to", "", "target language code")
	photo.Flags().StringVar(&display, "display", "", "displayed photo size WxH")
	photo.Flags().StringVar(&viewport, "viewport", "", "viewport size WxH for overlay layout")
	photo.Flags().BoolVar(&showAll, "show-all", false, "lay out every box")
	_ = photo.MarkFlagRequired("image")
	_ = photo.MarkFlagRequired("from")
	_ = photo.MarkFlagRequired("to")

	install := &cobra.Command{
		Use:   "install LANG",
		Short: "Enqueue an install-language task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := langid.Canonicalize(args[0]); err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			enq, err := queue.NewEnqueuer(cfg.RedisURL, cfg.QueueName, cfg.ProcessingTimeout)
			if err != nil {
				return err
			}
			defer enq.Close()

			ctx, cancel := signalContext(30 * time.Second)
			defer cancel()
			jobID, err := enq.EnqueueInstall(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), jobID)
			return nil
		},
	}

	cmd.AddCommand(photo, install)
	return cmd
}

func newVoicesCmd() *cobra.Command {
	var (
		file   string
		gender string
	)
	cmd := &cobra.Command{
		Use:   "voices LANG",
		Short: "Pick a voice for a language from the voice catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := langid.Canonicalize(args[0])
			if err != nil {
				return err
			}
			if file == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				file = cfg.Voices.File
			}
			if file == "" {
				return fmt.Errorf("no voice catalog configured (set VOICES_FILE or --file)")
			}
			catalog, err := voices.Load(file)
			if err != nil {
				return err
			}

			v, exact, ok := catalog.Select(id, voices.Gender(gender))
			if !ok {
				return fmt.Errorf("no voices configured for %s", id)
			}
			return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
				"language": id,
				"voice":    v,
				"exact":    exact,
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "voice catalog YAML (default: voices.file from config)")
	cmd.Flags().StringVar(&gender, "gender", string(voices.Female), "female, male or neutral")
	return cmd
}
