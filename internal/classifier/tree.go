package classifier

import (
	"sort"

	"defi-risk-lab/internal/domain"
)

// node is either a split (feature <= threshold goes left) or a leaf.
type node struct {
	leaf       bool
	label      domain.RiskLabel
	confidence float64 // share of training samples at the leaf carrying label

	feature   int
	threshold float64
	left      *node
	right     *node
}

func (n *node) predict(fv domain.FeatureVector) *node {
	cur := n
	for !cur.leaf {
		if fv.Value(cur.feature) <= cur.threshold {
			cur = cur.left
		} else {
			cur = cur.right
		}
	}
	return cur
}

func (n *node) depth() int {
	if n.leaf {
		return 0
	}
	l, r := n.left.depth(), n.right.depth()
	if l > r {
		return l + 1
	}
	return r + 1
}

func (n *node) leaves() int {
	if n.leaf {
		return 1
	}
	return n.left.leaves() + n.right.leaves()
}

// builder grows a CART tree with Gini impurity over a fixed sample set.
type builder struct {
	features       []domain.FeatureVector
	labels         []int // label severity, 0..numClasses-1
	maxDepth       int   // 0 = unlimited
	minSamplesLeaf int
}

const numClasses = 3

var severityLabels = [numClasses]domain.RiskLabel{domain.RiskLow, domain.RiskMedium, domain.RiskHigh}

type classCounts [numClasses]int

func (c classCounts) total() int {
	return c[0] + c[1] + c[2]
}

func (c classCounts) gini() float64 {
	n := float64(c.total())
	if n == 0 {
		return 0
	}
	g := 1.0
	for _, k := range c {
		p := float64(k) / n
		g -= p * p
	}
	return g
}

// majority picks the most frequent class; ties go to the more severe label.
func (c classCounts) majority() (int, float64) {
	best := 0
	for k := 1; k < numClasses; k++ {
		if c[k] >= c[best] {
			best = k
		}
	}
	return best, float64(c[best]) / float64(c.total())
}

func (b *builder) counts(idx []int) classCounts {
	var c classCounts
	for _, i := range idx {
		c[b.labels[i]]++
	}
	return c
}

func (b *builder) grow(idx []int, depth int) *node {
	counts := b.counts(idx)

	if counts.gini() == 0 ||
		(b.maxDepth > 0 && depth >= b.maxDepth) ||
		len(idx) < 2*b.minSamplesLeaf {
		return b.leaf(counts)
	}

	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return b.leaf(counts)
	}

	var left, right []int
	for _, i := range idx {
		if b.features[i].Value(feature) <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	return &node{
		feature:   feature,
		threshold: threshold,
		left:      b.grow(left, depth+1),
		right:     b.grow(right, depth+1),
	}
}

func (b *builder) leaf(counts classCounts) *node {
	class, conf := counts.majority()
	return &node{leaf: true, label: severityLabels[class], confidence: conf}
}

// bestSplit scans every feature and every boundary between distinct adjacent
// values. The lowest weighted impurity wins; ties keep the earlier feature and
// the lower threshold so the result is deterministic.
func (b *builder) bestSplit(idx []int) (int, float64, bool) {
	n := len(idx)
	bestImpurity := 0.0
	bestFeature := -1
	bestThreshold := 0.0

	sorted := make([]int, n)
	for f := 0; f < domain.NumFeatures; f++ {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(i, j int) bool {
			return b.features[sorted[i]].Value(f) < b.features[sorted[j]].Value(f)
		})

		var left classCounts
		right := b.counts(sorted)

		for pos := 1; pos < n; pos++ {
			moved := b.labels[sorted[pos-1]]
			left[moved]++
			right[moved]--

			if pos < b.minSamplesLeaf || n-pos < b.minSamplesLeaf {
				continue
			}

			lo := b.features[sorted[pos-1]].Value(f)
			hi := b.features[sorted[pos]].Value(f)
			if lo == hi {
				continue
			}

			impurity := (float64(pos)*left.gini() + float64(n-pos)*right.gini()) / float64(n)
			if bestFeature == -1 || impurity < bestImpurity-1e-12 {
				bestImpurity = impurity
				bestFeature = f
				bestThreshold = midpoint(lo, hi)
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature != -1
}

// midpoint returns a threshold t with lo <= t < hi.
func midpoint(lo, hi float64) float64 {
	t := lo/2 + hi/2
	if t < lo || t >= hi {
		return lo
	}
	return t
}
