// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/nlpodyssey/attentionocr"
	"github.com/nlpodyssey/attentionocr/dataset"
	"github.com/nlpodyssey/attentionocr/downloader"
	"github.com/nlpodyssey/attentionocr/history"
	"github.com/nlpodyssey/attentionocr/layers"
	"github.com/nlpodyssey/attentionocr/ocrmodel"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	log.Logger = log.Level(zerolog.InfoLevel)
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	app := &cli.App{
		Name:  "attentionocr",
		Usage: "Train and run an attention-based OCR model",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "set log level (trace, debug, info, warn, error, fatal, panic)",
				Action: func(c *cli.Context, s string) error {
					return setDebugLevel(s)
				},
				Value:   "info",
				EnvVars: []string{"ATTENTIONOCR_LOGLEVEL"},
			},
			&cli.StringFlag{
				Name:     "model-dir",
				Usage:    "directory of the model to operate on",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "settings",
				Usage: "YAML file with the model, training and decoding settings",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "train",
				Usage: "Train a new model, or resume the training of an existing one",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "train",
						Usage:    "glob of the training images (labelled by file name) or a .tsv manifest",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "validation",
						Usage: "glob of the validation images or a .tsv manifest",
					},
					&cli.BoolFlag{
						Name:  "resume",
						Usage: "continue the training of the model in model-dir",
					},
					&cli.IntFlag{
						Name:  "show",
						Usage: "number of validation samples to transcribe after the training",
						Value: 10,
					},
				},
				Action: train,
			},
			{
				Name:      "predict",
				Usage:     "Transcribe image files",
				ArgsUsage: "IMAGE...",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "template",
						Usage: "text/template file used to print every prediction",
					},
				},
				Action: predict,
			},
			{
				Name:  "width",
				Usage: "Print the number of encoder positions for an image width",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:     "image-width",
						Usage:    "image width in pixels",
						Required: true,
					},
				},
				Action: width,
			},
			{
				Name:   "history",
				Usage:  "List the training runs recorded in model-dir",
				Action: listHistory,
			},
			{
				Name:  "download",
				Usage: "Download model to directory",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "access-token",
						Usage:   "huggingface.co access token",
						EnvVars: []string{"HF_TOKEN"},
					},
					&cli.BoolFlag{
						Name:  "overwrite",
						Usage: "download the files even if they already exist",
					},
					&cli.StringFlag{
						Name:  "revision",
						Usage: "revision of the model repository",
						Value: downloader.DefaultRevision,
					},
					&cli.StringFlag{
						Name:  "vocabulary",
						Usage: "reject the model unless it reads exactly these characters",
					},
				},
				Action: download,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func setDebugLevel(debugLevel string) error {
	level, err := zerolog.ParseLevel(debugLevel)
	if err != nil {
		return err
	}
	log.Logger = log.Level(level)
	return nil
}

func loadSettings(c *cli.Context) (attentionocr.Settings, error) {
	filename := c.String("settings")
	if filename == "" {
		return attentionocr.DefaultSettings(), nil
	}
	return attentionocr.LoadSettings(filename)
}

// loadSource reads a manifest when the argument ends with ".tsv", and
// expands it as a glob otherwise.
func loadSource(arg string) (dataset.Source, error) {
	if strings.HasSuffix(arg, ".tsv") {
		return dataset.FromManifest(arg)
	}
	return dataset.FromGlob(arg)
}

func train(c *cli.Context) error {
	modelDir := c.String("model-dir")
	settings, err := loadSettings(c)
	if err != nil {
		return err
	}

	trainData, err := loadSource(c.String("train"))
	if err != nil {
		return err
	}
	var validationData dataset.Source
	if v := c.String("validation"); v != "" {
		if validationData, err = loadSource(v); err != nil {
			return err
		}
	}
	log.Info().Int("train", len(trainData)).Int("validation", len(validationData)).Msg("samples loaded")

	var ocr *attentionocr.AttentionOCR
	if c.Bool("resume") {
		ocr, err = attentionocr.Load(modelDir)
	} else {
		ocr, err = attentionocr.New(settings.Model)
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(modelDir, 0755); err != nil {
		return err
	}
	store, err := history.Open(filepath.Join(modelDir, history.DefaultFilename))
	if err != nil {
		return err
	}
	defer func() {
		if e := store.Close(); e != nil {
			log.Err(e).Msg("failed to close the history database")
		}
	}()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	_, err = ocr.FitSamples(ctx, trainData, validationData, attentionocr.FitOptions{
		Training: settings.Training,
		ModelDir: modelDir,
		History:  store,
	})
	if err != nil {
		return err
	}

	show := validationData
	if len(show) == 0 {
		show = trainData
	}
	if n := c.Int("show"); len(show) > n {
		show = show[:n]
	}
	if len(show) == 0 {
		return nil
	}
	paths := make([]string, len(show))
	for i, s := range show {
		paths[i] = s.Path
	}
	predictions, err := ocr.PredictFiles(ctx, paths, settings.Decoding)
	if err != nil {
		return err
	}
	for i := range predictions {
		predictions[i].Expected = show[i].Text
	}
	fmt.Print(attentionocr.FormatPredictions(predictions))
	return nil
}

func predict(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("missing image files")
	}
	settings, err := loadSettings(c)
	if err != nil {
		return err
	}
	ocr, err := attentionocr.Load(c.String("model-dir"))
	if err != nil {
		return err
	}
	opts := settings.Decoding
	if c.String("settings") == "" {
		opts.MaxLen = ocr.Model.Config.MaxTextLength + 1
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	predictions, err := ocr.PredictFiles(ctx, c.Args().Slice(), opts)
	if err != nil {
		return err
	}
	out := attentionocr.FormatPredictions(predictions)
	if tpl := c.String("template"); tpl != "" {
		if out, err = attentionocr.FormatPredictionsFromTemplateFile(predictions, tpl); err != nil {
			return err
		}
	}
	fmt.Print(out)
	return nil
}

func width(c *cli.Context) error {
	config, err := modelConfig(c)
	if err != nil {
		return err
	}
	cnn, err := layers.NewCNN(layers.NewRand(config.Seed), config.ImageChannels, layers.DefaultLayers(config.BaseFilters, config.Dropout))
	if err != nil {
		return err
	}
	in := layers.Shape{Height: config.ImageHeight, Width: c.Int("image-width"), Channels: config.ImageChannels}
	out, err := cnn.OutputShape(in)
	if err != nil {
		return err
	}
	fmt.Printf("image %v -> %d encoder positions (last feature map %v)\n", in, out.Width, out)
	return nil
}

// modelConfig returns the configuration of the model in model-dir, if any,
// or the one of the settings.
func modelConfig(c *cli.Context) (ocrmodel.Config, error) {
	config, err := ocrmodel.LoadConfig(filepath.Join(c.String("model-dir"), ocrmodel.DefaultConfigFilename))
	if err == nil {
		return config, nil
	}
	if !os.IsNotExist(err) {
		return ocrmodel.Config{}, err
	}
	settings, err := loadSettings(c)
	if err != nil {
		return ocrmodel.Config{}, err
	}
	return settings.Model, nil
}

func listHistory(c *cli.Context) error {
	filename := filepath.Join(c.String("model-dir"), history.DefaultFilename)
	if _, err := os.Stat(filename); err != nil {
		return fmt.Errorf("no training history in %q: %w", c.String("model-dir"), err)
	}
	store, err := history.Open(filename)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Runs()
	if err != nil {
		return err
	}
	for _, r := range runs {
		status := "interrupted"
		if r.FinishedAt != nil {
			status = "finished " + r.FinishedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("run %d, started %s, %s, %d parameters\n", r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), status, r.NumParams)
		for _, e := range r.Epochs {
			fmt.Printf("  epoch %3d  loss %.4f", e.Epoch, e.Loss)
			if e.ValidationLoss != nil {
				fmt.Printf("  val_loss %.4f  val_cer %.4f  val_accuracy %.4f", *e.ValidationLoss, *e.ValidationCER, *e.ValidationAccuracy)
			}
			fmt.Printf("  (%s)\n", e.Duration)
		}
	}
	return nil
}

func download(c *cli.Context) error {
	modelDir := c.String("model-dir")
	repository, err := repositoryName(modelDir)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	m, err := downloader.Fetch(ctx, downloader.Request{
		Repository:  repository,
		Revision:    c.String("revision"),
		Dir:         modelDir,
		Vocabulary:  c.String("vocabulary"),
		Overwrite:   c.Bool("overwrite"),
		AccessToken: c.String("access-token"),
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d parameters, vocabulary %q\n", modelDir, m.NumParams(), m.Config.Vocabulary)
	return nil
}

// repositoryName returns the "organization/model" name formed by the last
// two directories of the model path.
func repositoryName(path string) (string, error) {
	dirs := strings.Split(strings.TrimSuffix(filepath.ToSlash(path), "/"), "/")
	if len(dirs) < 3 {
		return "", fmt.Errorf("path must have at least three levels of directories")
	}
	return dirs[len(dirs)-2] + "/" + dirs[len(dirs)-1], nil
}
