package ops

import (
	"unsafe"

	"github.com/streamcv/streamcv/internal/parallel"
	"github.com/streamcv/streamcv/internal/status"
	"github.com/streamcv/streamcv/internal/tensor"
)

// kernelParallelism splits row and proposal loops across cores. Kernels
// run one at a time per stream; parallelism here is within one kernel.
var kernelParallelism = parallel.DefaultConfig()

// CPU reference kernels. They run on the stream worker and stand in for
// device compute; errors they return poison the stream like any device
// fault.

type box struct{ x, y, w, h float32 }

func (a box) iou(b box) float32 {
	x1 := maxf(a.x, b.x)
	y1 := maxf(a.y, b.y)
	x2 := minf(a.x+a.w, b.x+b.w)
	y2 := minf(a.y+a.h, b.y+b.h)
	iw, ih := x2-x1, y2-y1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := a.w*a.h + b.w*b.h - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

// nmsKernelCPU keeps a proposal when its score clears the threshold and
// no higher-scored proposal in the same batch overlaps it past the IoU
// threshold. Ties break toward the lower index.
func nmsKernelCPU(dst, src, scores *tensor.Tensor, scoreThreshold, iouThreshold float32) error {
	boxes := src.AsFloat32()
	sc := scores.AsFloat32()
	mask := dst.AsUint8()
	bs, ss, ms := src.Strides(), scores.Strides(), dst.Strides()
	batch, n := src.Shape()[0], src.Shape()[1]

	boxAt := func(b, i int) box {
		base := (b*bs[0] + i*bs[1]) / 4
		step := bs[2] / 4
		return box{boxes[base], boxes[base+step], boxes[base+2*step], boxes[base+3*step]}
	}
	scoreAt := func(b, i int) float32 { return sc[(b*ss[0]+i*ss[1])/4] }

	parallel.ForRows(batch, n, func(b, i int) {
		si := scoreAt(b, i)
		keep := uint8(0)
		if si >= scoreThreshold {
			keep = 1
			bi := boxAt(b, i)
			for j := 0; j < n; j++ {
				if j == i {
					continue
				}
				sj := scoreAt(b, j)
				if sj < si || (sj == si && j > i) {
					continue
				}
				if bi.iou(boxAt(b, j)) > iouThreshold {
					keep = 0
					break
				}
			}
		}
		mask[b*ms[0]+i*ms[1]] = keep
	}, kernelParallelism)
	return nil
}

// resizeKernelCPU rescales an NHWC batch per the selected filter.
func resizeKernelCPU(op *Resize, dst, src *tensor.Tensor, interp Interp) error {
	switch src.DType() {
	case tensor.U8:
		resizeNHWC(dst.AsUint8(), src.AsUint8(), dst.Desc(), src.Desc(), 1, interp)
	case tensor.F32:
		resizeNHWC(dst.AsFloat32(), src.AsFloat32(), dst.Desc(), src.Desc(), 4, interp)
	default:
		return status.InvalidArgumentf("unsupported resize dtype %s", src.DType())
	}
	return nil
}

// resizeVarShapeKernelCPU rescales each image pair of a variable-shape
// batch. Single-plane formats only; planar formats need a device kernel.
func resizeVarShapeKernelCPU(op *Resize, dst, src *tensor.ImageBatchVarShape, interp Interp) error {
	fmt := src.UniqueFormat()
	if fmt.NumPlanes() != 1 {
		return status.InvalidArgumentf("multi-plane format %s not supported by the reference kernel", fmt)
	}
	ch := fmt.NumChannels()
	for i := 0; i < src.NumImages(); i++ {
		in, out := src.At(i), dst.At(i)
		pin, pout := in.Requirements().Planes[0], out.Requirements().Planes[0]
		switch fmt.DType() {
		case tensor.U8:
			resizePlane(out.Data(), in.Data(),
				out.Width(), out.Height(), pout.RowStride,
				in.Width(), in.Height(), pin.RowStride, ch, interp)
		case tensor.F32:
			resizePlane(f32view(out.Data()), f32view(in.Data()),
				out.Width(), out.Height(), pout.RowStride/4,
				in.Width(), in.Height(), pin.RowStride/4, ch, interp)
		default:
			return status.InvalidArgumentf("unsupported resize dtype %s", fmt.DType())
		}
	}
	return nil
}

func resizeNHWC[T uint8 | float32](ddata, sdata []T, ddesc, sdesc tensor.Descriptor, esz int, interp Interp) {
	dShape, sShape := ddesc.Shape(), sdesc.Shape()
	ds, ss := ddesc.Strides(), sdesc.Strides()
	batch, ch := dShape[0], dShape[3]
	for b := 0; b < batch; b++ {
		dstImg := ddata[b*ds[0]/esz:]
		srcImg := sdata[b*ss[0]/esz:]
		resizePlane(dstImg, srcImg,
			dShape[2], dShape[1], ds[1]/esz,
			sShape[2], sShape[1], ss[1]/esz, ch, interp)
	}
}

// resizePlane rescales one interleaved plane. Strides are in elements.
func resizePlane[T uint8 | float32](dst, src []T, dw, dh, dstride, sw, sh, sstride, ch int, interp Interp) {
	if dw == 0 || dh == 0 || sw == 0 || sh == 0 {
		return
	}
	scaleX := float32(sw) / float32(dw)
	scaleY := float32(sh) / float32(dh)
	parallel.For(dh, func(y int) {
		for x := 0; x < dw; x++ {
			for c := 0; c < ch; c++ {
				var v float32
				if interp == InterpLinear {
					v = sampleLinear(src, sw, sh, sstride, ch, c,
						(float32(x)+0.5)*scaleX-0.5, (float32(y)+0.5)*scaleY-0.5)
				} else {
					sx := clampi(int(float32(x)*scaleX), 0, sw-1)
					sy := clampi(int(float32(y)*scaleY), 0, sh-1)
					v = float32(src[sy*sstride+sx*ch+c])
				}
				dst[y*dstride+x*ch+c] = roundTo[T](v)
			}
		}
	}, kernelParallelism)
}

func sampleLinear[T uint8 | float32](src []T, sw, sh, sstride, ch, c int, fx, fy float32) float32 {
	if fx < 0 {
		fx = 0
	}
	if fy < 0 {
		fy = 0
	}
	x0 := clampi(int(fx), 0, sw-1)
	y0 := clampi(int(fy), 0, sh-1)
	x1 := clampi(x0+1, 0, sw-1)
	y1 := clampi(y0+1, 0, sh-1)
	wx := fx - float32(x0)
	wy := fy - float32(y0)
	at := func(x, y int) float32 { return float32(src[y*sstride+x*ch+c]) }
	top := at(x0, y0)*(1-wx) + at(x1, y0)*wx
	bot := at(x0, y1)*(1-wx) + at(x1, y1)*wx
	return top*(1-wy) + bot*wy
}

func roundTo[T uint8 | float32](v float32) T {
	var zero T
	if _, isU8 := any(zero).(uint8); isU8 {
		if v < 0 {
			v = 0
		} else if v > 255 {
			v = 255
		}
		return T(v + 0.5)
	}
	return T(v)
}

func clampi(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// f32view reinterprets an image plane as float32 elements.
func f32view(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4) //nolint:gosec
}
