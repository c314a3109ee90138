package churn

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"olistpipe/internal/observability"
	"olistpipe/internal/warehouse"
	"olistpipe/pkg/errors"
)

// PredictionTable receives the scored held-out customers
const PredictionTable = "ml_churn_predictions"

// PredictionColumns is the fixed layout of PredictionTable
var PredictionColumns = []warehouse.Column{
	{Name: "customer_unique_id", Type: warehouse.TypeString},
	{Name: "churn_probability", Type: warehouse.TypeFloat},
	{Name: "actual_churned", Type: warehouse.TypeBoolean},
	{Name: "first_purchase_date", Type: warehouse.TypeDate},
	{Name: "last_purchase_date", Type: warehouse.TypeDate},
	{Name: "total_orders", Type: warehouse.TypeNumber},
	{Name: "total_accounts", Type: warehouse.TypeNumber},
	{Name: "total_revenue", Type: warehouse.TypeFloat},
	{Name: "avg_revenue_per_order", Type: warehouse.TypeFloat},
	{Name: "days_since_last_order", Type: warehouse.TypeNumber},
}

const (
	// DefaultTestSize is the held-out share of customers
	DefaultTestSize = 0.2
	// DefaultSplitSeed fixes the train/test partition
	DefaultSplitSeed = 42

	modelFilePrefix = "churn_model_"
	modelTimeLayout = "20060102_150405"
)

// Options configures a Trainer
type Options struct {
	Open     warehouse.Opener
	ModelDir string
	// Table overrides the feature table name
	Table    string
	Forest   ForestConfig
	TestSize float64
	Seed     int64
	Logger   *observability.Logger
	Now      func() time.Time
}

// Report summarises one training run
type Report struct {
	Rows        int
	TrainRows   int
	TestRows    int
	Features    []string
	Imputed     int
	ModelPath   string
	Accuracy    float64
	AUC         float64
	Predictions int
	Duration    time.Duration
}

// Trainer runs the churn training job end to end
type Trainer struct {
	opts Options
}

// NewTrainer applies defaults to opts
func NewTrainer(opts Options) *Trainer {
	if opts.Forest.Trees == 0 {
		opts.Forest = DefaultForestConfig()
	}
	if opts.TestSize == 0 {
		opts.TestSize = DefaultTestSize
	}
	if opts.Seed == 0 {
		opts.Seed = DefaultSplitSeed
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewNopLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Trainer{opts: opts}
}

// ModelPath is where a model trained at t is saved
func ModelPath(dir string, t time.Time) string {
	return filepath.Join(dir, modelFilePrefix+t.Format(modelTimeLayout)+".json")
}

// Run loads the feature table, trains on the stratified training partition,
// saves the model and replaces PredictionTable with the scored test partition.
// The session is closed on every path.
func (t *Trainer) Run(ctx context.Context) (report *Report, err error) {
	if t.opts.Open == nil {
		return nil, errors.New(errors.ErrCodeInternal, "Trainer has no warehouse opener")
	}
	start := time.Now()
	stamp := t.opts.Now()
	log := t.opts.Logger.WithField("job", "churn")

	session, err := t.opts.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, errors.ErrCodeConnectionFailed, "Failed to close warehouse session")
		}
	}()

	ds, err := LoadDataset(ctx, session, t.opts.Table)
	if err != nil {
		return nil, err
	}
	if ds.Imputed > 0 {
		log.Warnf("Replaced %d NULL feature values with 0", ds.Imputed)
	}
	log.InfoWithFields("Loaded feature table", map[string]interface{}{
		"rows":     ds.Len(),
		"features": ds.Features,
	})

	split, err := StratifiedSplit(ds.Y, t.opts.TestSize, t.opts.Seed)
	if err != nil {
		return nil, err
	}

	trainX, trainY := subset(ds, split.Train)
	testX, testY := subset(ds, split.Test)

	forest := NewForest(t.opts.Forest)
	if err := forest.Fit(ctx, ds.Features, trainX, trainY); err != nil {
		return nil, err
	}

	path := ModelPath(t.opts.ModelDir, stamp)
	if err := forest.Save(path); err != nil {
		return nil, err
	}
	log.Infof("Model trained and saved at %s", path)

	proba, err := forest.PredictProba(testX)
	if err != nil {
		return nil, err
	}

	rows := make([][]interface{}, len(split.Test))
	for k, i := range split.Test {
		rows[k] = predictionRow(ds.Customers[i], proba[k], testY[k] == 1)
	}
	if err := session.ReplaceTable(ctx, PredictionTable, PredictionColumns, rows); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeWarehouseWrite, "Failed to upload churn predictions").
			WithContext("table", PredictionTable)
	}

	report = &Report{
		Rows:        ds.Len(),
		TrainRows:   len(split.Train),
		TestRows:    len(split.Test),
		Features:    ds.Features,
		Imputed:     ds.Imputed,
		ModelPath:   path,
		Accuracy:    Accuracy(testY, proba, 0.5),
		AUC:         ROCAUC(testY, proba),
		Predictions: len(rows),
		Duration:    time.Since(start),
	}
	log.InfoWithFields("Predictions uploaded", map[string]interface{}{
		"table":    PredictionTable,
		"rows":     report.Predictions,
		"accuracy": fmt.Sprintf("%.4f", report.Accuracy),
		"roc_auc":  fmt.Sprintf("%.4f", report.AUC),
	})
	return report, nil
}

func subset(ds *Dataset, idx []int) ([][]float64, []int) {
	x := make([][]float64, len(idx))
	y := make([]int, len(idx))
	for k, i := range idx {
		x[k] = ds.X[i]
		y[k] = ds.Y[i]
	}
	return x, y
}

func predictionRow(c Customer, proba float64, churned bool) []interface{} {
	return []interface{}{
		c.UniqueID,
		proba,
		churned,
		dateValue(c.FirstPurchaseDate.Time, c.FirstPurchaseDate.Valid),
		dateValue(c.LastPurchaseDate.Time, c.LastPurchaseDate.Valid),
		nullable(c.TotalOrders.Int64, c.TotalOrders.Valid),
		nullable(c.TotalAccounts.Int64, c.TotalAccounts.Valid),
		nullable(c.TotalRevenue.Float64, c.TotalRevenue.Valid),
		nullable(c.AvgRevenuePerOrder.Float64, c.AvgRevenuePerOrder.Valid),
		nullable(c.DaysSinceLastOrder.Int64, c.DaysSinceLastOrder.Valid),
	}
}

// dates are bound as ISO strings so both warehouses cast them to DATE
func dateValue(t time.Time, valid bool) interface{} {
	if !valid {
		return nil
	}
	return t.Format("2006-01-02")
}

func nullable[T any](v T, valid bool) interface{} {
	if !valid {
		return nil
	}
	return v
}
