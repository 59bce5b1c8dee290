package tensor

import (
	"runtime"
	"sync"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
)

// General views a row-major slice as a rows x cols BLAS matrix.
func General(data []float64, rows, cols int) blas64.General {
	return blas64.General{Rows: rows, Cols: cols, Data: data[:rows*cols], Stride: cols}
}

// Gemm computes c = alpha*op(a)*op(b) + beta*c.
func Gemm(transA, transB bool, alpha float64, a, b blas64.General, beta float64, c blas64.General) {
	blas64.Gemm(trans(transA), trans(transB), alpha, a, b, beta, c)
}

func trans(t bool) blas.Transpose {
	if t {
		return blas.Trans
	}
	return blas.NoTrans
}

// MatMul returns a[m,k] x b[k,n].
func MatMul(a, b *Tensor) *Tensor {
	m, k := a.Shape[0], a.Shape[1]
	if b.Shape[0] != k {
		panic("tensor: matmul inner dimension mismatch")
	}
	n := b.Shape[1]
	out := New(m, n)
	Gemm(false, false, 1, General(a.Data, m, k), General(b.Data, k, n), 0, General(out.Data, m, n))
	return out
}

// MatMulT returns a[m,k] x b[n,k]^T.
func MatMulT(a, b *Tensor) *Tensor {
	m, k := a.Shape[0], a.Shape[1]
	if b.Shape[1] != k {
		panic("tensor: matmulT inner dimension mismatch")
	}
	n := b.Shape[0]
	out := New(m, n)
	Gemm(false, true, 1, General(a.Data, m, k), General(b.Data, n, k), 0, General(out.Data, m, n))
	return out
}

// Parallel splits [0, n) into contiguous chunks and runs fn on each from its
// own goroutine. worker is the chunk index in [0, Workers(n)).
func Parallel(n int, fn func(worker, lo, hi int)) {
	workers := Workers(n)
	if workers == 1 {
		fn(0, 0, n)
		return
	}
	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := min(lo+chunk, n)
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			fn(w, lo, hi)
		}(w, lo, hi)
	}
	wg.Wait()
}

// Workers is the number of chunks Parallel uses for n items.
func Workers(n int) int {
	w := runtime.GOMAXPROCS(0)
	if w > n {
		w = n
	}
	if w < 1 {
		w = 1
	}
	return w
}
