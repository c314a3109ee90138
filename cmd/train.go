package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"olistpipe/internal/churn"
	"olistpipe/internal/config"
	"olistpipe/internal/ingest"
	"olistpipe/internal/ui"
)

// martSchemaKey names the schema holding the dbt marts
const martSchemaKey = "SNOWFLAKE_SCHEMA_MART"

var (
	trainTrees    int
	trainModelDir string
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train machine learning models",
}

var trainChurnCmd = &cobra.Command{
	Use:   "churn",
	Short: "Train the churn classifier and publish predictions",
	Long: `Reads fct_customer_features_ml from the mart schema, trains a random forest on
a stratified 80% of customers, saves the model under the model directory and
replaces ml_churn_predictions with the scored remaining 20%.`,
	Args: cobra.NoArgs,
	RunE: runTrainChurn,
}

func runTrainChurn(cmd *cobra.Command, args []string) error {
	creds := current.credentials(config.PrimaryPrefix).
		WithSchema(current.env().Get(martSchemaKey, ""))
	if err := current.requireCredentials(creds, ingest.RequiredFields...); err != nil {
		return err
	}

	forest := churn.DefaultForestConfig()
	if trainTrees > 0 {
		forest.Trees = trainTrees
	}
	modelDir := current.settings.ModelDir
	if trainModelDir != "" {
		modelDir = trainModelDir
	}

	trainer := churn.NewTrainer(churn.Options{
		Open:     current.opener(creds),
		ModelDir: modelDir,
		Forest:   forest,
		Logger:   current.logger,
	})

	out := cmd.OutOrStdout()
	spinner := ui.NewSpinner(out, "Training churn model")
	spinner.Start()
	report, err := trainer.Run(cmd.Context())
	if err != nil {
		spinner.Stop(false, "Churn training failed")
		return err
	}
	spinner.Stop(true, "Model trained and predictions uploaded")

	ui.KeyValues(out, [][2]string{
		{"Model", report.ModelPath},
		{"Customers", strconv.Itoa(report.Rows)},
		{"Train / test", fmt.Sprintf("%d / %d", report.TrainRows, report.TestRows)},
		{"Features", strconv.Itoa(len(report.Features))},
		{"Accuracy", fmt.Sprintf("%.4f", report.Accuracy)},
		{"ROC AUC", fmt.Sprintf("%.4f", report.AUC)},
		{"Predictions", fmt.Sprintf("%d rows in %s", report.Predictions, churn.PredictionTable)},
		{"Duration", ui.FormatDuration(report.Duration)},
	})
	return nil
}

func init() {
	trainChurnCmd.Flags().IntVar(&trainTrees, "trees", 0, "number of trees (default 100)")
	trainChurnCmd.Flags().StringVar(&trainModelDir, "model-dir", "", "directory for the saved model (default settings model_dir)")
	trainCmd.AddCommand(trainChurnCmd)
	rootCmd.AddCommand(trainCmd)
}
