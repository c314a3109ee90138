package churn

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"os"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"olistpipe/internal/common"
	"olistpipe/pkg/errors"
)

// ForestConfig controls how the forest is grown
type ForestConfig struct {
	Trees int   `json:"trees"`
	Seed  int64 `json:"seed"`
	// MaxFeatures is the number of candidate features per split; 0 means sqrt(features)
	MaxFeatures int `json:"max_features"`
	// MaxDepth limits tree depth; 0 grows until leaves are pure
	MaxDepth        int `json:"max_depth"`
	MinSamplesSplit int `json:"min_samples_split"`
	// Workers bounds parallel tree construction; 0 uses GOMAXPROCS
	Workers int `json:"-"`
}

// DefaultForestConfig returns the settings the churn model is trained with
func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		Trees:           100,
		Seed:            42,
		MinSamplesSplit: 2,
	}
}

// node is a flattened tree node. Leaves have Left == -1.
type node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	// Prob is the share of positive samples that reached the node
	Prob float64 `json:"p"`
}

type tree struct {
	Nodes []node `json:"nodes"`
}

func (t *tree) predict(x []float64) float64 {
	i := 0
	for t.Nodes[i].Left >= 0 {
		n := t.Nodes[i]
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return t.Nodes[i].Prob
}

// Forest is a binary random forest classifier of CART trees
type Forest struct {
	Config    ForestConfig `json:"config"`
	Features  []string     `json:"features"`
	TrainedAt time.Time    `json:"trained_at"`
	Trees     []tree       `json:"trees"`
}

// NewForest creates an unfitted forest
func NewForest(cfg ForestConfig) *Forest {
	if cfg.Trees <= 0 {
		cfg.Trees = DefaultForestConfig().Trees
	}
	if cfg.MinSamplesSplit < 2 {
		cfg.MinSamplesSplit = 2
	}
	return &Forest{Config: cfg}
}

// Fit grows the forest on rows of x with binary labels y. Every tree draws a
// bootstrap sample using a seed derived from the forest seed, so the result
// does not depend on scheduling.
func (f *Forest) Fit(ctx context.Context, features []string, x [][]float64, y []int) error {
	if len(x) == 0 || len(x) != len(y) {
		return errors.New(errors.ErrCodeModelTraining, "Training data is empty or misaligned").
			WithContext("rows", len(x)).
			WithContext("labels", len(y))
	}
	width := len(x[0])
	if width == 0 || (len(features) > 0 && len(features) != width) {
		return errors.New(errors.ErrCodeModelTraining, "Feature names do not match the training data")
	}

	maxFeatures := f.Config.MaxFeatures
	if maxFeatures <= 0 || maxFeatures > width {
		maxFeatures = int(math.Sqrt(float64(width)))
		if maxFeatures < 1 {
			maxFeatures = 1
		}
	}

	seeds := make([]int64, f.Config.Trees)
	master := rand.New(rand.NewSource(f.Config.Seed))
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	workers := f.Config.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	trees := make([]tree, f.Config.Trees)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range trees {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			b := &builder{
				x:           x,
				y:           y,
				rng:         rand.New(rand.NewSource(seeds[i])),
				maxFeatures: maxFeatures,
				maxDepth:    f.Config.MaxDepth,
				minSplit:    f.Config.MinSamplesSplit,
			}
			trees[i] = b.build(bootstrap(len(x), b.rng))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, errors.ErrCodeModelTraining, "Forest training was interrupted")
	}

	f.Features = append([]string(nil), features...)
	f.Trees = trees
	f.TrainedAt = time.Now().UTC()
	return nil
}

// PredictProba returns the positive-class probability for each row
func (f *Forest) PredictProba(x [][]float64) ([]float64, error) {
	if len(f.Trees) == 0 {
		return nil, errors.New(errors.ErrCodeModelTraining, "Forest has not been fitted")
	}
	out := make([]float64, len(x))
	for r, row := range x {
		if len(f.Features) > 0 && len(row) != len(f.Features) {
			return nil, errors.ValidationError("row", r, "feature count does not match the model")
		}
		sum := 0.0
		for i := range f.Trees {
			sum += f.Trees[i].predict(row)
		}
		out[r] = sum / float64(len(f.Trees))
	}
	return out, nil
}

// Save writes the forest as JSON
func (f *Forest) Save(path string) error {
	data, err := json.Marshal(f)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "Failed to encode model")
	}
	if err := common.WriteFile(path, data, common.FilePermissionNormal); err != nil {
		return errors.FileError(errors.ErrCodeFileWrite, "Failed to save model", path, err)
	}
	return nil
}

// LoadForest reads a forest written by Save
func LoadForest(path string) (*Forest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.ErrCodeFileNotFound, "Model file not found", path, err)
		}
		return nil, errors.FileError(errors.ErrCodeFileRead, "Failed to read model", path, err)
	}
	var f Forest
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errors.FileError(errors.ErrCodeFileMalformed, "Model file is not valid", path, err)
	}
	return &f, nil
}

func bootstrap(n int, rng *rand.Rand) []int {
	sample := make([]int, n)
	for i := range sample {
		sample[i] = rng.Intn(n)
	}
	return sample
}

type builder struct {
	x           [][]float64
	y           []int
	rng         *rand.Rand
	maxFeatures int
	maxDepth    int
	minSplit    int
	nodes       []node
}

func (b *builder) build(sample []int) tree {
	b.nodes = b.nodes[:0]
	b.grow(sample, 0)
	return tree{Nodes: b.nodes}
}

// grow appends the subtree for sample and returns its root index
func (b *builder) grow(sample []int, depth int) int {
	pos := 0
	for _, i := range sample {
		pos += b.y[i]
	}
	idx := len(b.nodes)
	b.nodes = append(b.nodes, node{
		Feature: -1,
		Left:    -1,
		Right:   -1,
		Prob:    float64(pos) / float64(len(sample)),
	})

	if pos == 0 || pos == len(sample) || len(sample) < b.minSplit ||
		(b.maxDepth > 0 && depth >= b.maxDepth) {
		return idx
	}

	feature, threshold, ok := b.bestSplit(sample, pos)
	if !ok {
		return idx
	}

	var left, right []int
	for _, i := range sample {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	b.nodes[idx].Feature = feature
	b.nodes[idx].Threshold = threshold
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[idx].Left = l
	b.nodes[idx].Right = r
	return idx
}

// bestSplit draws features in random order until maxFeatures non-constant
// ones were evaluated and returns the split with the lowest weighted Gini.
func (b *builder) bestSplit(sample []int, pos int) (int, float64, bool) {
	width := len(b.x[0])
	order := b.rng.Perm(width)

	n := float64(len(sample))
	bestScore := gini(pos, len(sample)) * n
	bestFeature, bestThreshold, found := -1, 0.0, false

	sorted := make([]int, len(sample))
	visited := 0
	for _, f := range order {
		if visited >= b.maxFeatures {
			break
		}
		copy(sorted, sample)
		sort.Slice(sorted, func(i, j int) bool {
			return b.x[sorted[i]][f] < b.x[sorted[j]][f]
		})
		if b.x[sorted[0]][f] == b.x[sorted[len(sorted)-1]][f] {
			continue
		}
		visited++

		leftPos := 0
		for k := 0; k < len(sorted)-1; k++ {
			leftPos += b.y[sorted[k]]
			cur, next := b.x[sorted[k]][f], b.x[sorted[k+1]][f]
			if cur == next {
				continue
			}
			nl := k + 1
			nr := len(sorted) - nl
			score := gini(leftPos, nl)*float64(nl) + gini(pos-leftPos, nr)*float64(nr)
			if score < bestScore {
				bestScore = score
				bestFeature = f
				bestThreshold = cur + (next-cur)/2
				if bestThreshold >= next {
					bestThreshold = cur
				}
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}

func gini(pos, n int) float64 {
	if n == 0 {
		return 0
	}
	p := float64(pos) / float64(n)
	return 2 * p * (1 - p)
}
