package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cafe-compass/compass-cli/internal/classifier"
	"github.com/cafe-compass/compass-cli/internal/dataset"
	"github.com/cafe-compass/compass-cli/internal/features"
	"github.com/cafe-compass/compass-cli/internal/model"
)

var (
	trainInput string
	trainShops string
	trainModel string
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the success classifier on scored tracts labeled by nearby successful shops",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, err := sidePath(trainInput, modelPath(trainModel), "model", ".json", trainShops)
		if err != nil {
			return err
		}
		rows, err := dataset.ReadCSV[features.Scored](trainInput)
		if err != nil {
			return err
		}
		known, err := dataset.ReadCSV[model.Shop](trainShops)
		if err != nil {
			return err
		}

		forest, rep, err := classifier.Train(rows, known, cfg.Classifier)
		if err != nil {
			return err
		}

		if err := forest.Save(path); err != nil {
			return err
		}
		formatTrainReport(os.Stdout, rep)
		_, _ = fmt.Fprintf(os.Stdout, "model written to %s\n", path)
		return nil
	},
}

var (
	predictIO    ioFlags
	predictModel string
	predictSave  bool
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Write success_probability into a scored CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		out, err := predictIO.resolve("predicted")
		if err != nil {
			return err
		}
		forest, err := classifier.Load(modelPath(predictModel))
		if err != nil {
			return err
		}
		rows, err := dataset.ReadCSV[features.Scored](predictIO.input)
		if err != nil {
			return err
		}

		forest.Apply(rows)
		if err := dataset.WriteCSV(out, rows); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(os.Stdout, "predicted %d tracts into %s\n", len(rows), out)
		if !predictSave {
			return nil
		}
		return publishScores(cmd.Context(), "predict", predictIO.input, len(rows), rows)
	},
}

func modelPath(flag string) string {
	if flag != "" {
		return flag
	}
	return cfg.Classifier.ModelPath
}

func formatTrainReport(out io.Writer, rep classifier.Report) {
	m := rep.Metrics
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Rows:\t%d (%d positive)\n", rep.Rows, rep.Positives)
	_, _ = fmt.Fprintf(w, "Train/test:\t%d/%d\n", rep.TrainRows, rep.TestRows)
	_, _ = fmt.Fprintf(w, "Accuracy:\t%.3f\n", m.Accuracy)
	_, _ = fmt.Fprintf(w, "Precision:\t%.3f\n", m.Precision)
	_, _ = fmt.Fprintf(w, "Recall:\t%.3f\n", m.Recall)
	_, _ = fmt.Fprintf(w, "F1:\t%.3f\n", m.F1)
	if m.AUC != nil {
		_, _ = fmt.Fprintf(w, "ROC AUC:\t%.3f\n", *m.AUC)
	} else {
		_, _ = fmt.Fprintln(w, "ROC AUC:\tn/a (single class in test set)")
	}
	_ = w.Flush()

	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FEATURE\tIMPORTANCE")
	for _, imp := range rep.Importance {
		_, _ = fmt.Fprintf(w, "%s\t%.4f\n", imp.Column, imp.Value)
	}
	_ = w.Flush()
}

func init() {
	trainCmd.Flags().StringVarP(&trainInput, "input", "i", "", "scored tract CSV")
	trainCmd.Flags().StringVar(&trainShops, "shops", "yemeni_coffee_shops.csv", "shop survey CSV")
	trainCmd.Flags().StringVar(&trainModel, "model", "", "model output path (default from config)")
	_ = trainCmd.MarkFlagRequired("input")

	addIOFlags(predictCmd, &predictIO, "scored tract CSV")
	predictCmd.Flags().StringVar(&predictModel, "model", "", "model path (default from config)")
	predictCmd.Flags().BoolVar(&predictSave, "save", false, "publish scores and probabilities to the store")

	rootCmd.AddCommand(trainCmd, predictCmd)
}
