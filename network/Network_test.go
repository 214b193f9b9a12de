package network

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"math"
	"testing"

	G "gorgonia.org/gorgonia"
)

func run(t *testing.T, net NeuralNet, input []float64) [][]float64 {
	t.Helper()

	if err := net.SetInput(input); err != nil {
		t.Fatal(err)
	}
	vm := G.NewTapeMachine(net.Graph())
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}

	outputs := make([][]float64, len(net.Output()))
	for i, out := range net.Output() {
		outputs[i] = append([]float64(nil), out.Data().([]float64)...)
	}
	return outputs
}

func TestMultiHeadMLPForward(t *testing.T) {
	net, err := NewMultiHeadMLP(2, 1, 1, G.NewGraph(), []int{}, []bool{},
		G.Zeroes(), []*Activation{})
	if err != nil {
		t.Fatal(err)
	}
	if err := SetWeights(net, [][]float64{{1, 2}, {0.5}}); err != nil {
		t.Fatal(err)
	}

	out := run(t, net, []float64{3, 4})
	if out[0][0] != 11.5 {
		t.Errorf("output = %v, want 11.5", out[0][0])
	}
}

func TestMultiHeadMLPReLU(t *testing.T) {
	net, err := NewMultiHeadMLP(1, 2, 1, G.NewGraph(), []int{1},
		[]bool{false}, G.Zeroes(), []*Activation{ReLU()})
	if err != nil {
		t.Fatal(err)
	}
	// Hidden weight 1, output weight 2, output bias 1
	if err := SetWeights(net, [][]float64{{1}, {2}, {1}}); err != nil {
		t.Fatal(err)
	}

	out := run(t, net, []float64{-3, 3})
	if out[0][0] != 1 || out[0][1] != 7 {
		t.Errorf("outputs = %v, want [1 7]", out[0])
	}
}

func TestSetAndPolyak(t *testing.T) {
	a, err := NewMultiHeadMLP(3, 1, 2, G.NewGraph(), []int{4}, []bool{true},
		G.GlorotU(1.0), []*Activation{TanH()})
	if err != nil {
		t.Fatal(err)
	}
	b, err := a.CloneWithBatch(5)
	if err != nil {
		t.Fatal(err)
	}
	if b.BatchSize() != 5 || b.Features() != 3 || b.Outputs()[0] != 2 {
		t.Fatalf("clone has batch %v, features %v, outputs %v", b.BatchSize(),
			b.Features(), b.Outputs())
	}

	before := Weights(b)
	zeroes := make([][]float64, len(before))
	for i := range before {
		zeroes[i] = make([]float64, len(before[i]))
	}
	if err := SetWeights(a, zeroes); err != nil {
		t.Fatal(err)
	}

	if err := b.Polyak(a, 0.25); err != nil {
		t.Fatal(err)
	}
	after := Weights(b)
	for i := range after {
		for j := range after[i] {
			if math.Abs(after[i][j]-0.75*before[i][j]) > 1e-12 {
				t.Fatalf("polyak weight %v,%v = %v, want %v", i, j,
					after[i][j], 0.75*before[i][j])
			}
		}
	}

	if err := b.Set(a); err != nil {
		t.Fatal(err)
	}
	for _, w := range Weights(b) {
		for _, v := range w {
			if v != 0 {
				t.Fatal("set did not copy weights")
			}
		}
	}
}

func TestCloneWithInputTo(t *testing.T) {
	net, err := NewMultiHeadMLP(3, 2, 1, G.NewGraph(), []int{5},
		[]bool{true}, G.GlorotN(1.0), []*Activation{ReLU()})
	if err != nil {
		t.Fatal(err)
	}
	input := []float64{0.1, 0.2, 0.3, -0.4, 0.5, 0.6}
	want := run(t, net, input)

	g := G.NewGraph()
	state := G.NewMatrix(g, G.Float64, G.WithShape(2, 2), G.WithName("s"),
		G.WithInit(G.Zeroes()))
	action := G.NewMatrix(g, G.Float64, G.WithShape(2, 1), G.WithName("a"),
		G.WithInit(G.Zeroes()))
	clone, err := net.CloneWithInputTo(1, []*G.Node{state, action}, g)
	if err != nil {
		t.Fatal(err)
	}

	G.Let(state, tensorOf([]float64{0.1, 0.2, -0.4, 0.5}, 2, 2))
	G.Let(action, tensorOf([]float64{0.3, 0.6}, 2, 1))
	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}

	got := clone.Output()[0].Data().([]float64)
	for i := range got {
		if math.Abs(got[i]-want[0][i]) > 1e-12 {
			t.Errorf("clone output %v = %v, want %v", i, got[i], want[0][i])
		}
	}

	if _, err := net.CloneWithInputTo(1, []*G.Node{state}, g); err == nil {
		t.Error("expected error cloning with too few input features")
	}
}

func TestTreeMLP(t *testing.T) {
	net, err := NewTreeMLP(2, 3, 1, G.NewGraph(), []int{4}, []bool{true},
		[]*Activation{TanH()}, [][]int{{}, {}}, [][]bool{{}, {}},
		[][]*Activation{{}, {}}, G.GlorotU(1.0))
	if err != nil {
		t.Fatal(err)
	}

	if len(net.Prediction()) != 2 {
		t.Fatalf("tree has %v leaves, want 2", len(net.Prediction()))
	}
	// Root weights and bias, then one weight and bias per leaf
	if len(net.Learnables()) != 6 {
		t.Errorf("tree has %v learnables, want 6", len(net.Learnables()))
	}

	input := []float64{1, 2, 3, 4, 5, 6}
	want := run(t, net, input)
	if len(want[0]) != 3 || len(want[1]) != 3 {
		t.Fatalf("leaf outputs have lengths %v, %v; want 3, 3", len(want[0]),
			len(want[1]))
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(net); err != nil {
		t.Fatal(err)
	}
	var decoded TreeMLP
	if err := gob.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatal(err)
	}

	got := run(t, &decoded, input)
	for leaf := range want {
		for i := range want[leaf] {
			if math.Abs(got[leaf][i]-want[leaf][i]) > 1e-12 {
				t.Errorf("decoded leaf %v output %v = %v, want %v", leaf, i,
					got[leaf][i], want[leaf][i])
			}
		}
	}
}

func TestNewTreeMLPErrors(t *testing.T) {
	_, err := NewTreeMLP(2, 1, 1, G.NewGraph(), []int{}, []bool{},
		[]*Activation{}, [][]int{{}}, [][]bool{{}}, [][]*Activation{{}},
		G.Zeroes())
	if err == nil {
		t.Error("expected error for root network with no layers")
	}

	_, err = NewTreeMLP(2, 1, 1, G.NewGraph(), []int{2}, []bool{true},
		[]*Activation{ReLU()}, [][]int{{}, {}}, [][]bool{{}},
		[][]*Activation{{}, {}}, G.Zeroes())
	if err == nil {
		t.Error("expected error for inconsistent leaf biases")
	}
}

func TestActivationJSON(t *testing.T) {
	acts := []*Activation{ReLU(), TanH(), Identity()}
	data, err := json.Marshal(acts)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `["relu","tanh","identity"]` {
		t.Errorf("marshalled activations = %s", data)
	}

	var decoded []*Activation
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	for i := range acts {
		if decoded[i].String() != acts[i].String() {
			t.Errorf("activation %v = %v, want %v", i, decoded[i], acts[i])
		}
	}

	if err := json.Unmarshal([]byte(`["sigmoid"]`), &decoded); err == nil {
		t.Error("expected error for unknown activation")
	}
}
