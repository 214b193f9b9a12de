package network

import "gorgonia.org/tensor"

func tensorOf(data []float64, shape ...int) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}
