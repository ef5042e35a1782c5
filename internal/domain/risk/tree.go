package risk

import "sort"

// FeatureNames is the column order of the encoded vector.
var FeatureNames = []string{
	"attendance_percentage",
	"average_score",
	"exam_attempts",
	"fee_status_encoded",
}

const numFeatures = 4

// classOrder is the order used to break majority ties: the sorted tier names.
var classOrder = []Level{High, Low, Medium}

type vector [numFeatures]float64

type sample struct {
	x vector
	y Level
}

// Node is one node of a binary decision tree. Rows with
// x[Feature] <= Threshold go left.
type Node struct {
	Leaf      bool    `json:"leaf"`
	Level     Level   `json:"level"`
	Samples   int     `json:"samples"`
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      *Node   `json:"left,omitempty"`
	Right     *Node   `json:"right,omitempty"`
}

// Depth returns the number of split levels below n.
func (n *Node) Depth() int {
	if n == nil || n.Leaf {
		return 0
	}
	l, r := n.Left.Depth(), n.Right.Depth()
	if l > r {
		return l + 1
	}
	return r + 1
}

func (n *Node) predict(x vector) Level {
	for !n.Leaf {
		if x[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Level
}

type classCounts [3]int

func classIndex(l Level) int {
	for i, c := range classOrder {
		if c == l {
			return i
		}
	}
	return -1
}

func countClasses(samples []sample) classCounts {
	var c classCounts
	for _, s := range samples {
		c[classIndex(s.y)]++
	}
	return c
}

func (c classCounts) total() int {
	return c[0] + c[1] + c[2]
}

func (c classCounts) majority() Level {
	best := 0
	for i := 1; i < len(c); i++ {
		if c[i] > c[best] {
			best = i
		}
	}
	return classOrder[best]
}

func (c classCounts) pure() bool {
	nonZero := 0
	for _, v := range c {
		if v > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

// weightedGini returns n * gini(c).
func (c classCounts) weightedGini() float64 {
	n := float64(c.total())
	if n == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range c {
		p := float64(v) / n
		sum += p * p
	}
	return n * (1 - sum)
}

type treeGrower struct {
	maxDepth        int
	minSamplesSplit int
}

func (g treeGrower) grow(samples []sample, depth int) *Node {
	counts := countClasses(samples)
	node := &Node{Samples: len(samples), Level: counts.majority()}

	if depth >= g.maxDepth || len(samples) < g.minSamplesSplit || counts.pure() {
		node.Leaf = true
		return node
	}

	feature, threshold, ok := bestSplit(samples, counts)
	if !ok {
		node.Leaf = true
		return node
	}

	var left, right []sample
	for _, s := range samples {
		if s.x[feature] <= threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}

	node.Feature = feature
	node.Threshold = threshold
	node.Left = g.grow(left, depth+1)
	node.Right = g.grow(right, depth+1)
	return node
}

// bestSplit scans every feature for the threshold with the lowest weighted
// gini impurity. Ties keep the earliest feature and the lowest threshold.
func bestSplit(samples []sample, parent classCounts) (int, float64, bool) {
	const eps = 1e-9

	bestImpurity := parent.weightedGini() - eps
	bestFeature, bestThreshold, found := 0, 0.0, false

	order := make([]int, len(samples))
	for f := 0; f < numFeatures; f++ {
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return samples[order[a]].x[f] < samples[order[b]].x[f]
		})

		var left classCounts
		right := parent
		for i := 0; i < len(order)-1; i++ {
			ci := classIndex(samples[order[i]].y)
			left[ci]++
			right[ci]--

			cur, next := samples[order[i]].x[f], samples[order[i+1]].x[f]
			if cur == next {
				continue
			}
			impurity := left.weightedGini() + right.weightedGini()
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = f
				bestThreshold = (cur + next) / 2
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}
