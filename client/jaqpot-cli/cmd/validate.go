package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Submit validation tasks",
}

var external struct {
	model   string
	dataset string
}

var training struct {
	algorithm       string
	dataset         string
	feature         string
	params          string
	transformations string
	scaling         string
}

var cross struct {
	folds    int
	stratify string
	seed     int
}

var splitRatio float64

var externalCmd = &cobra.Command{
	Use:   "external",
	Short: "Validate an existing model against a test dataset",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := newClient().submit(cmd.Context(), "test_set_validation", map[string]any{
			"model_uri":        external.model,
			"test_dataset_uri": external.dataset,
		})
		if err != nil {
			return err
		}
		printSubmitted(cmd.OutOrStdout(), t)
		return nil
	},
}

var crossCmd = &cobra.Command{
	Use:   "cross",
	Short: "Run k-fold cross validation of an algorithm",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := trainingRequest()
		req["folds"] = cross.folds
		if cross.stratify != "" {
			req["stratify"] = cross.stratify
		}
		if cmd.Flags().Changed("seed") {
			req["seed"] = cross.seed
		}
		t, err := newClient().submit(cmd.Context(), "training_test_cross", req)
		if err != nil {
			return err
		}
		printSubmitted(cmd.OutOrStdout(), t)
		return nil
	},
}

var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "Train on part of a dataset and validate on the rest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := trainingRequest()
		req["split_ratio"] = splitRatio
		t, err := newClient().submit(cmd.Context(), "training_test_split", req)
		if err != nil {
			return err
		}
		printSubmitted(cmd.OutOrStdout(), t)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.AddCommand(externalCmd, crossCmd, splitCmd)

	externalCmd.Flags().StringVar(&external.model, "model", "", "model URI")
	externalCmd.Flags().StringVar(&external.dataset, "dataset", "", "test dataset URI")
	externalCmd.MarkFlagRequired("model")
	externalCmd.MarkFlagRequired("dataset")

	for _, c := range []*cobra.Command{crossCmd, splitCmd} {
		c.Flags().StringVar(&training.algorithm, "algorithm", "", "algorithm URI")
		c.Flags().StringVar(&training.dataset, "dataset", "", "training dataset URI")
		c.Flags().StringVar(&training.feature, "feature", "", "prediction feature URI")
		c.Flags().StringVar(&training.params, "params", "", "algorithm parameters as JSON")
		c.Flags().StringVar(&training.transformations, "transformations", "", "transformations URI")
		c.Flags().StringVar(&training.scaling, "scaling", "", "scaling URI")
		c.MarkFlagRequired("algorithm")
		c.MarkFlagRequired("dataset")
		c.MarkFlagRequired("feature")
	}

	crossCmd.Flags().IntVar(&cross.folds, "folds", 10, "number of folds")
	crossCmd.Flags().StringVar(&cross.stratify, "stratify", "", "stratification: random or normal")
	crossCmd.Flags().IntVar(&cross.seed, "seed", 0, "random seed")

	splitCmd.Flags().Float64Var(&splitRatio, "ratio", 0.75, "fraction of the dataset used for training")
}

func trainingRequest() map[string]any {
	req := map[string]any{
		"algorithm_uri":        training.algorithm,
		"training_dataset_uri": training.dataset,
		"prediction_feature":   training.feature,
	}
	for k, v := range map[string]string{
		"algorithm_params": training.params,
		"transformations":  training.transformations,
		"scaling":          training.scaling,
	} {
		if v != "" {
			req[k] = v
		}
	}
	return req
}

func printSubmitted(w io.Writer, t *task) {
	fmt.Fprintf(w, "Task submitted successfully!\nTask ID: %s\n", t.ID)
	fmt.Fprintf(w, "To watch its progress, run: jaqpot-cli watch %s\n", t.ID)
}
