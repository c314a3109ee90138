package churn

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"olistpipe/pkg/errors"
)

// Split holds row indices for the training and held-out partitions
type Split struct {
	Train []int
	Test  []int
}

// StratifiedSplit partitions row indices so every class keeps its share in
// both partitions. The same labels and seed always yield the same split.
func StratifiedSplit(labels []int, testSize float64, seed int64) (*Split, error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, errors.ValidationError("test_size", testSize, "must be between 0 and 1")
	}
	n := len(labels)
	if n == 0 {
		return nil, errors.New(errors.ErrCodeNoResults, "Cannot split an empty dataset")
	}

	byClass := map[int][]int{}
	for i, y := range labels {
		byClass[y] = append(byClass[y], i)
	}
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	if len(classes) < 2 {
		return nil, errors.New(errors.ErrCodeValidationFailed, "Label has a single class; a classifier cannot be trained").
			WithContext("class", classes[0])
	}
	for _, c := range classes {
		if len(byClass[c]) < 2 {
			return nil, errors.New(errors.ErrCodeValidationFailed,
				fmt.Sprintf("Class %d has %d member; stratification needs at least 2", c, len(byClass[c])))
		}
	}

	nTest := int(math.Ceil(testSize * float64(n)))
	if nTest < len(classes) || n-nTest < len(classes) {
		return nil, errors.New(errors.ErrCodeValidationFailed,
			fmt.Sprintf("A test size of %d rows cannot hold all %d classes", nTest, len(classes)))
	}

	alloc := allocate(classes, byClass, n, nTest)

	rng := rand.New(rand.NewSource(seed))
	split := &Split{}
	for _, c := range classes {
		members := append([]int(nil), byClass[c]...)
		rng.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
		split.Test = append(split.Test, members[:alloc[c]]...)
		split.Train = append(split.Train, members[alloc[c]:]...)
	}
	sort.Ints(split.Train)
	sort.Ints(split.Test)
	return split, nil
}

// allocate distributes nTest rows across classes by largest remainder, then
// keeps at least one row of every class on each side.
func allocate(classes []int, byClass map[int][]int, n, nTest int) map[int]int {
	type share struct {
		class     int
		remainder float64
	}

	alloc := make(map[int]int, len(classes))
	shares := make([]share, 0, len(classes))
	assigned := 0
	for _, c := range classes {
		exact := float64(nTest) * float64(len(byClass[c])) / float64(n)
		floor := int(math.Floor(exact))
		alloc[c] = floor
		assigned += floor
		shares = append(shares, share{class: c, remainder: exact - float64(floor)})
	}

	sort.SliceStable(shares, func(i, j int) bool {
		return shares[i].remainder > shares[j].remainder
	})
	for i := 0; assigned < nTest; i++ {
		alloc[shares[i%len(shares)].class]++
		assigned++
	}

	for _, c := range classes {
		size := len(byClass[c])
		if alloc[c] < 1 {
			alloc[c] = 1
		}
		if alloc[c] > size-1 {
			alloc[c] = size - 1
		}
	}
	return alloc
}
