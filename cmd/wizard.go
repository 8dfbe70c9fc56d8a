package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/charmbracelet/huh"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"agriaid/crop"
	"agriaid/logger"
	"agriaid/provider"
	"agriaid/speech"
	"agriaid/wizard"
)

const startOver = "__start_over__"

var imageDir string

func NewWizardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wizard",
		Short: "Diagnose a crop interactively in the terminal",
		Long: `Walk through the three wizard steps in the terminal:

  1. describe the crop, how long ago it was planted and optionally a photo
  2. pick one of the visualized disease candidates
  3. read (or listen to) the action plan

Visualized images are saved as files so they can be opened in any viewer.`,
		Args: cobra.NoArgs,
		RunE: runWizard,
	}
	cmd.Flags().StringVar(&imageDir, "image-dir", "", "Directory for visualized disease images (default: a temp dir)")
	return cmd
}

type terminalWizard struct {
	ctl      *wizard.Controller
	disease  *wizard.DiseaseStep
	solution *wizard.SolutionStep
	voice    *speech.Service
	log      logger.Logger
	dir      string
	out      io.Writer
}

func runWizard(cmd *cobra.Command, args []string) error {
	if logLevel == "" {
		// keep log lines from interleaving with the forms
		logLevel = "warn"
	}
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	if cfg.App.LogFormat == "json" {
		cfg.App.LogFormat = "console"
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := provider.NewGateway(ctx, cfg.AI)
	if err != nil {
		return err
	}
	dir := imageDir
	if dir == "" {
		if dir, err = os.MkdirTemp("", "agriaid-*"); err != nil {
			return err
		}
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	voice := speech.FromConfig(cfg.Speech, log)
	defer voice.Stop()
	go func() {
		<-ctx.Done()
		voice.Stop()
	}()

	timeouts := wizard.Timeouts{Text: cfg.AI.Timeout, Image: cfg.AI.ImageTimeout}
	tw := &terminalWizard{
		ctl:      wizard.NewController(),
		disease:  &wizard.DiseaseStep{Gateway: gw, Log: log, Timeouts: timeouts},
		solution: &wizard.SolutionStep{Gateway: gw, Log: log, Timeouts: timeouts},
		voice:    voice,
		log:      log,
		dir:      dir,
		out:      os.Stdout,
	}
	defer tw.ctl.Close()

	printHeader("🌱 Crop Disease Wizard")
	err = tw.run(ctx)
	if errors.Is(err, huh.ErrUserAborted) || errors.Is(err, context.Canceled) {
		fmt.Println()
		return nil
	}
	return err
}

func (tw *terminalWizard) run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var (
			quit bool
			err  error
		)
		switch tw.ctl.State() {
		case wizard.UserInput:
			err = tw.userInput()
		case wizard.DiseaseSelection:
			err = tw.diseaseSelection(ctx)
		case wizard.Solution:
			quit, err = tw.actionPlan(ctx)
		}
		if err != nil || quit {
			return err
		}
	}
}

// --- Step 1 --- //

func (tw *terminalWizard) userInput() error {
	var cropName, days, photoPath string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Crop").
				Description("e.g., Tomato, Maize, Rice").
				Value(&cropName).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New(crop.MsgRequiredFields)
					}
					return nil
				}),
			huh.NewInput().
				Title("Days since planting").
				Value(&days).
				Validate(func(s string) error {
					_, err := crop.NewUserData("crop", s, nil)
					return err
				}),
			huh.NewInput().
				Title("Plant photo (optional)").
				Description("Path to a JPEG or PNG image").
				Value(&photoPath).
				Validate(func(s string) error {
					_, err := loadPhoto(s)
					return err
				}),
		),
	).WithShowHelp(false).WithShowErrors(true)
	if err := form.Run(); err != nil {
		return err
	}

	img, err := loadPhoto(photoPath)
	if err == nil {
		var ud crop.UserData
		if ud, err = crop.NewUserData(cropName, days, img); err == nil {
			err = tw.ctl.Start(ud)
		}
	}
	if err != nil {
		tw.ctl.RejectInput(err)
		printError(err.Error())
	}
	return nil
}

// loadPhoto reads an optional photo from disk. An empty path means none.
func loadPhoto(path string) (*crop.PlantImage, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, crop.UnreadableImage(err)
	}
	img := &crop.PlantImage{MimeType: http.DetectContentType(data), Data: data}
	if !strings.HasPrefix(img.MimeType, "image/") {
		return nil, &crop.ValidationError{Field: "photo", Message: crop.MsgInvalidImage}
	}
	return img, nil
}

// --- Step 2 --- //

func (tw *terminalWizard) diseaseSelection(ctx context.Context) error {
	s := spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Start()
	err := tw.disease.Enter(ctx, tw.ctl, wizard.Progress{
		Message: func(msg string) {
			s.Lock()
			s.Suffix = " " + msg
			s.Unlock()
		},
		Outcome: func(o wizard.Outcome) {
			s.Stop()
			if o.Skipped() {
				printWarning(fmt.Sprintf("Could not visualize %s", o.Name))
			} else {
				printSuccess(fmt.Sprintf("Visualized %s (%d/%d)", o.Name, o.Index, o.Total))
			}
			s.Start()
		},
	})
	s.Stop()
	if errors.Is(err, context.Canceled) {
		return err
	}

	snap := tw.ctl.Snapshot()
	if snap.Error != "" {
		printError(snap.Error)
		return tw.offerStartOver()
	}

	paths, err := writeImages(tw.dir, snap.Diseases)
	if err != nil {
		tw.log.Warnf(ctx, "saving images failed: %v", err)
	}
	fmt.Fprintln(tw.out)
	renderDiseases(tw.out, snap.Diseases, paths)

	choice := startOver
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which disease matches your plant?").
				Options(diseaseOptions(snap.Diseases)...).
				Value(&choice),
		),
	).WithShowHelp(false)
	if err := form.Run(); err != nil {
		return err
	}
	if choice == startOver {
		tw.ctl.Reset()
		return nil
	}
	if err := tw.ctl.Select(choice); err != nil {
		printError(err.Error())
	}
	return nil
}

// diseaseOptions lists only candidates with an image, then "Start over".
func diseaseOptions(ds []crop.DiseaseInfo) []huh.Option[string] {
	opts := make([]huh.Option[string], 0, len(ds)+1)
	for _, d := range ds {
		if d.Selectable() {
			opts = append(opts, huh.NewOption(d.Name, d.Name))
		}
	}
	return append(opts, huh.NewOption("Start over", startOver))
}

func renderDiseases(w io.Writer, ds []crop.DiseaseInfo, paths map[string]string) {
	bold := color.New(color.Bold)
	faint := color.New(color.Faint)
	for i, d := range ds {
		bold.Fprintf(w, "%d. %s\n", i+1, d.Name)
		fmt.Fprintf(w, "   %s\n", d.Description)
		if p, ok := paths[d.Name]; ok {
			faint.Fprintf(w, "   image: %s\n", p)
		} else {
			faint.Fprintln(w, "   image: unavailable")
		}
	}
	fmt.Fprintln(w)
}

var unsafeName = regexp.MustCompile(`[^a-z0-9]+`)

// writeImages saves each visualized candidate and returns name -> path.
func writeImages(dir string, ds []crop.DiseaseInfo) (map[string]string, error) {
	paths := map[string]string{}
	var firstErr error
	for i, d := range ds {
		if !d.Selectable() {
			continue
		}
		mimeType, data, err := crop.DecodeDataURI(d.ImageURL)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("decode image for %s: %w", d.Name, err)
			}
			continue
		}
		slug := strings.Trim(unsafeName.ReplaceAllString(strings.ToLower(d.Name), "-"), "-")
		p := filepath.Join(dir, fmt.Sprintf("%d-%s%s", i+1, slug, imageExt(mimeType)))
		if err := os.WriteFile(p, data, 0o644); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		paths[d.Name] = p
	}
	return paths, firstErr
}

func imageExt(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

// --- Step 3 --- //

func (tw *terminalWizard) actionPlan(ctx context.Context) (bool, error) {
	snap := tw.ctl.Snapshot()
	name := ""
	if snap.Selected != nil {
		name = snap.Selected.Name
	}

	s := spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Start()
	plan, err := tw.solution.Enter(ctx, tw.ctl, wizard.Progress{
		Message: func(msg string) {
			s.Lock()
			s.Suffix = " " + msg
			s.Unlock()
		},
	})
	s.Stop()
	switch {
	case errors.Is(err, context.Canceled):
		return false, err
	case errors.Is(err, wizard.ErrAlreadyFetched) && snap.Solution != nil:
		plan = *snap.Solution
	case err != nil:
		if msg := tw.ctl.Snapshot().Error; msg != "" {
			printError(msg)
		} else {
			printError(err.Error())
		}
		return false, tw.offerStartOver()
	}

	renderPlan(tw.out, name, plan)

	for {
		const (
			readAloud = "read"
			restart   = "restart"
			quit      = "quit"
		)
		var opts []huh.Option[string]
		if tw.canSpeak() {
			opts = append(opts, huh.NewOption("Read the plan aloud", readAloud))
		}
		opts = append(opts, huh.NewOption("Start over", restart), huh.NewOption("Quit", quit))
		choice := quit
		if err := huh.NewForm(huh.NewGroup(
			huh.NewSelect[string]().Title("What next?").Options(opts...).Value(&choice),
		)).WithShowHelp(false).Run(); err != nil {
			return false, err
		}
		switch choice {
		case readAloud:
			tw.speak(ctx, plan.ReadAloudScript(name))
		case restart:
			tw.voice.Stop()
			tw.ctl.Reset()
			return false, nil
		default:
			return true, nil
		}
	}
}

func (tw *terminalWizard) canSpeak() bool {
	return tw.voice.Supported() || (tw.voice.Remote != nil && tw.voice.Player != nil)
}

// speak reads text aloud until it ends, or until Ctrl-C stops it.
func (tw *terminalWizard) speak(ctx context.Context, text string) {
	done := tw.voice.Speak(ctx, text)
	if done == nil {
		return
	}
	s := spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " Speaking... (Ctrl-C to stop)"
	s.Start()
	defer s.Stop()
	select {
	case <-done:
	case <-ctx.Done():
		tw.voice.Stop()
	}
}

func renderPlan(w io.Writer, disease string, plan crop.SolutionInfo) {
	title := color.New(color.FgCyan, color.Bold)
	fmt.Fprintln(w)
	title.Fprintf(w, "Action plan for %s\n\n", disease)
	sections := []struct {
		heading string
		c       *color.Color
		items   []string
	}{
		{"Immediate Actions", color.New(color.FgRed, color.Bold), plan.ImmediateActions},
		{"Recommended Treatments", color.New(color.FgYellow, color.Bold), plan.RecommendedTreatments},
		{"Long-Term Prevention", color.New(color.FgGreen, color.Bold), plan.LongTermPrevention},
	}
	for _, s := range sections {
		s.c.Fprintln(w, s.heading)
		for _, item := range s.items {
			fmt.Fprintf(w, "  • %s\n", item)
		}
		fmt.Fprintln(w)
	}
}

func (tw *terminalWizard) offerStartOver() error {
	again := true
	if err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Start over?").
			Affirmative("Start over").
			Negative("Quit").
			Value(&again),
	)).WithShowHelp(false).Run(); err != nil {
		return err
	}
	if !again {
		return huh.ErrUserAborted
	}
	tw.ctl.Reset()
	return nil
}
