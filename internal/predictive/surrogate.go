package predictive

import (
	"math"
	"math/rand"
	"sort"
)

// surrogate is a cheap stand-in learner used by the extraction simulation.
// Two families are trained on stolen labels: logistic regression and a
// shallow decision tree.
type surrogate interface {
	fit(X [][]float64, y []int)
	predict(X [][]float64) []int
	name() string
}

type logisticSurrogate struct {
	weights []float64
	bias    float64
	epochs  int
	lr      float64
}

func newLogisticSurrogate() *logisticSurrogate {
	return &logisticSurrogate{epochs: 200, lr: 0.1}
}

func (s *logisticSurrogate) name() string { return "logistic_regression" }

func (s *logisticSurrogate) fit(X [][]float64, y []int) {
	if len(X) == 0 {
		return
	}
	width := len(X[0])
	s.weights = make([]float64, width)
	s.bias = 0
	n := float64(len(X))
	for epoch := 0; epoch < s.epochs; epoch++ {
		gradW := make([]float64, width)
		gradB := 0.0
		for i, row := range X {
			p := sigmoid(dot(s.weights, row) + s.bias)
			diff := p - float64(y[i])
			for j, v := range row {
				gradW[j] += diff * v
			}
			gradB += diff
		}
		for j := range s.weights {
			s.weights[j] -= s.lr * gradW[j] / n
		}
		s.bias -= s.lr * gradB / n
	}
}

func (s *logisticSurrogate) predict(X [][]float64) []int {
	out := make([]int, len(X))
	for i, row := range X {
		if sigmoid(dot(s.weights, row)+s.bias) >= 0.5 {
			out[i] = 1
		}
	}
	return out
}

// treeSurrogate is a depth-bounded decision tree over axis-aligned median
// splits, picked by Gini impurity.
type treeSurrogate struct {
	maxDepth int
	root     *treeNode
}

type treeNode struct {
	feature   int
	threshold float64
	label     int
	leaf      bool
	left      *treeNode
	right     *treeNode
}

func newTreeSurrogate() *treeSurrogate {
	return &treeSurrogate{maxDepth: 3}
}

func (s *treeSurrogate) name() string { return "decision_tree" }

func (s *treeSurrogate) fit(X [][]float64, y []int) {
	s.root = buildTree(X, y, s.maxDepth)
}

func (s *treeSurrogate) predict(X [][]float64) []int {
	out := make([]int, len(X))
	for i, row := range X {
		out[i] = classify(s.root, row)
	}
	return out
}

func buildTree(X [][]float64, y []int, depth int) *treeNode {
	majority := majorityLabel(y)
	if depth == 0 || len(X) < 4 || pure(y) {
		return &treeNode{leaf: true, label: majority}
	}

	bestFeature, bestThreshold, bestGini := -1, 0.0, math.Inf(1)
	width := len(X[0])
	for j := 0; j < width; j++ {
		threshold := medianOf(X, j)
		gini, ok := splitGini(X, y, j, threshold)
		if ok && gini < bestGini {
			bestGini = gini
			bestFeature = j
			bestThreshold = threshold
		}
	}
	if bestFeature < 0 {
		return &treeNode{leaf: true, label: majority}
	}

	var leftX, rightX [][]float64
	var leftY, rightY []int
	for i, row := range X {
		if row[bestFeature] <= bestThreshold {
			leftX = append(leftX, row)
			leftY = append(leftY, y[i])
		} else {
			rightX = append(rightX, row)
			rightY = append(rightY, y[i])
		}
	}
	if len(leftX) == 0 || len(rightX) == 0 {
		return &treeNode{leaf: true, label: majority}
	}
	return &treeNode{
		feature:   bestFeature,
		threshold: bestThreshold,
		left:      buildTree(leftX, leftY, depth-1),
		right:     buildTree(rightX, rightY, depth-1),
	}
}

func classify(node *treeNode, row []float64) int {
	for !node.leaf {
		if row[node.feature] <= node.threshold {
			node = node.left
		} else {
			node = node.right
		}
	}
	return node.label
}

func splitGini(X [][]float64, y []int, feature int, threshold float64) (float64, bool) {
	var leftY, rightY []int
	for i, row := range X {
		if row[feature] <= threshold {
			leftY = append(leftY, y[i])
		} else {
			rightY = append(rightY, y[i])
		}
	}
	if len(leftY) == 0 || len(rightY) == 0 {
		return 0, false
	}
	total := float64(len(y))
	return float64(len(leftY))/total*gini(leftY) + float64(len(rightY))/total*gini(rightY), true
}

func gini(y []int) float64 {
	if len(y) == 0 {
		return 0
	}
	positives := 0
	for _, label := range y {
		if label == 1 {
			positives++
		}
	}
	p := float64(positives) / float64(len(y))
	return 2 * p * (1 - p)
}

func pure(y []int) bool {
	for _, label := range y[1:] {
		if label != y[0] {
			return false
		}
	}
	return true
}

func majorityLabel(y []int) int {
	positives := 0
	for _, label := range y {
		if label == 1 {
			positives++
		}
	}
	if positives*2 >= len(y) {
		return 1
	}
	return 0
}

func medianOf(X [][]float64, feature int) float64 {
	values := make([]float64, len(X))
	for i, row := range X {
		values[i] = row[feature]
	}
	sort.Float64s(values)
	return values[len(values)/2]
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// sampleIndices draws up to n distinct row indices.
func sampleIndices(total, n int, rng *rand.Rand) []int {
	if n >= total {
		out := make([]int, total)
		for i := range out {
			out[i] = i
		}
		return out
	}
	return rng.Perm(total)[:n]
}
