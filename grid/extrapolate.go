package grid

// ExtrapolateLayers flood-fills invalid samples outward from the valid set,
// one layer at a time. Each newly assigned sample is the average of its
// already-assigned face neighbors, which makes the result a breadth-first
// nearest-valid assignment, deterministic for a given mask and layer count.
// The valid mask is updated in place as layers are assigned.
func ExtrapolateLayers(field *Array3D[float32], valid *Array3D[bool], numLayers int) {
	layers := NewArray3DFilled[int16](field.ISize, field.JSize, field.KSize, -1)
	for idx, v := range valid.Data() {
		if v {
			layers.Data()[idx] = 0
		}
	}

	neighbors := [6][3]int{
		{-1, 0, 0}, {1, 0, 0},
		{0, -1, 0}, {0, 1, 0},
		{0, 0, -1}, {0, 0, 1},
	}

	for layer := int16(1); layer <= int16(numLayers); layer++ {
		// Mark this layer's frontier first so samples assigned during the
		// layer do not feed each other.
		var frontier []Index
		for k := 0; k < field.KSize; k++ {
			for j := 0; j < field.JSize; j++ {
				for i := 0; i < field.ISize; i++ {
					if layers.Get(i, j, k) != -1 {
						continue
					}
					for _, n := range neighbors {
						ni, nj, nk := i+n[0], j+n[1], k+n[2]
						if layers.IsIndexInRange(ni, nj, nk) && layers.Get(ni, nj, nk) == layer-1 {
							frontier = append(frontier, Index{i, j, k})
							break
						}
					}
				}
			}
		}

		for _, idx := range frontier {
			sum := float32(0)
			count := 0
			for _, n := range neighbors {
				ni, nj, nk := idx.I+n[0], idx.J+n[1], idx.K+n[2]
				if layers.IsIndexInRange(ni, nj, nk) {
					l := layers.Get(ni, nj, nk)
					if l != -1 && l < layer {
						sum += field.Get(ni, nj, nk)
						count++
					}
				}
			}
			if count > 0 {
				field.Set(idx.I, idx.J, idx.K, sum/float32(count))
				layers.Set(idx.I, idx.J, idx.K, layer)
			}
		}
	}

	for idx, l := range layers.Data() {
		if l > 0 {
			valid.Data()[idx] = true
		}
	}
}

// ExtrapolateMACVelocityField extrapolates all three components of a MAC
// field outward from their valid masks by numLayers layers.
func ExtrapolateMACVelocityField(field *MACVelocityField, valid *ValidVelocityGrid, numLayers int) {
	ExtrapolateLayers(field.U, valid.ValidU, numLayers)
	ExtrapolateLayers(field.V, valid.ValidV, numLayers)
	ExtrapolateLayers(field.W, valid.ValidW, numLayers)
}
