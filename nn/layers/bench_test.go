package layers

import (
	"testing"
)

func benchmarkForwardBackward(b *testing.B, l Layer, shape ...int) {
	x := filled(shape...)
	y, err := l.Forward(x, true)
	if err != nil {
		b.Fatal(err)
	}
	g := upstream(y.Shape)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := l.Forward(x, true); err != nil {
			b.Fatal(err)
		}
		if _, err := l.Backward(g); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkConv1D(b *testing.B) {
	benchmarkForwardBackward(b, NewConv1D("conv", 100, 256, 3, testSource()), 8, 200, 100)
}

func BenchmarkMaxPool1D(b *testing.B) {
	benchmarkForwardBackward(b, NewMaxPool1D("pool", 198), 8, 198, 256)
}

func BenchmarkGRU(b *testing.B) {
	g, err := NewGRU("gru", 100, 256, testSource())
	if err != nil {
		b.Fatal(err)
	}
	benchmarkForwardBackward(b, g, 8, 50, 100)
}

func BenchmarkDenseSoftmax(b *testing.B) {
	d, err := NewDense("dense", 1280, 10, Softmax, testSource())
	if err != nil {
		b.Fatal(err)
	}
	benchmarkForwardBackward(b, d, 64, 1280)
}
