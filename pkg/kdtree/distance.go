package kdtree

// distanceToNode returns the signed distance of query vector x from
// node n's split plane: negative or zero means x falls on the left
// side, positive means the right side. Orthogonal mode reduces to a
// single warped, weighted coordinate difference; hyperplane mode sums
// the warped, weighted difference over every dimension with a
// non-zero split coefficient, normalised by split_norm.
func (t *Tree) distanceToNode(n int, x []float64, useSigma bool) float64 {
	node := &t.nodes[n]
	if t.cfg.Decomposition == Hyperplane {
		sum := 0.0
		splits := t.splits[n]
		means := t.means[n]
		for d := 0; d < t.dim; d++ {
			if splits[d] == 0 {
				continue
			}
			diff := applyWarp(t.warpFor(d), x[d]-means[d])
			sum += (diff / t.sigmaFor(d, useSigma)) * splits[d]
		}
		t.Profile.VectorToNode++
		return sum / node.SplitNorm
	}
	diff := applyWarp(t.warpFor(node.SplitDim), x[node.SplitDim]-t.means[n][node.SplitDim])
	t.Profile.VectorToNode++
	return diff / t.sigmaFor(node.SplitDim, useSigma)
}

// distanceToNodeRow is distanceToNode specialised for a stored data
// row (float32), used only during Build's partition step so the
// query-side hot path never pays for the conversion.
func (t *Tree) distanceToNodeRow(n int, row []float32, useSigma bool) float64 {
	node := &t.nodes[n]
	if t.cfg.Decomposition == Hyperplane {
		sum := 0.0
		splits := t.splits[n]
		means := t.means[n]
		for d := 0; d < t.dim; d++ {
			if splits[d] == 0 {
				continue
			}
			diff := applyWarp(t.warpFor(d), float64(row[d])-means[d])
			sum += (diff / t.sigmaFor(d, useSigma)) * splits[d]
		}
		return sum / node.SplitNorm
	}
	diff := applyWarp(t.warpFor(node.SplitDim), float64(row[node.SplitDim])-t.means[n][node.SplitDim])
	return diff / t.sigmaFor(node.SplitDim, useSigma)
}

func (t *Tree) warpFor(dim int) *Warp {
	if t.warps == nil {
		return nil
	}
	return t.warps[dim]
}

// sigmaFor returns the divisor for dimension dim: 1 unless weighting
// is requested and configured, in which case it is sigma[dim] (never
// zero for a dimension actually used as a split/query dimension,
// since zero-sigma dimensions are excluded from sigmaNNZ).
func (t *Tree) sigmaFor(dim int, useSigma bool) float64 {
	if !t.useWeighted(useSigma) {
		return 1
	}
	if t.sigma[dim] == 0 {
		return 1
	}
	return t.sigma[dim]
}

// squaredDistance computes the weighted, optionally warped squared
// Euclidean distance between query x and the data row row, ranging
// only over non-zero-sigma dimensions when useSigma is requested.
func (t *Tree) squaredDistance(x []float64, row []float32, useSigma bool) float64 {
	weighted := t.useWeighted(useSigma)
	d2 := 0.0
	if weighted {
		for _, d := range t.sigmaNNZ {
			diff := applyWarp(t.warpFor(d), x[d]-float64(row[d]))
			term := diff / t.sigma[d]
			d2 += term * term
		}
		return d2
	}
	for d := 0; d < t.dim; d++ {
		diff := applyWarp(t.warpFor(d), x[d]-float64(row[d]))
		d2 += diff * diff
	}
	return d2
}
