package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/dunamismax/printflow/internal/codec"
	"github.com/dunamismax/printflow/internal/domain"
	"github.com/dunamismax/printflow/internal/imgerr"
)

func TestProcessor_StandardPrintRequest(t *testing.T) {
	source := buildTestPNG(t, 800, 600)
	spec := mustSpec(t, domain.PrintOptions{PrintDPI: 300}, &domain.CropRegion{X: 0.1, Y: 0.1, Width: 0.8, Height: 0.8})

	result, err := NewProcessor(Config{}, nil).ProcessBytes(context.Background(), source, spec)
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if result.Width != 2400 || result.Height != 1800 {
		t.Fatalf("expected 2400x1800, got %dx%d", result.Width, result.Height)
	}
	if result.Format != FormatPNG {
		t.Fatalf("expected PNG format, got %s", result.Format)
	}
	if result.Bytes != len(result.Data) {
		t.Fatalf("byte size %d does not match payload %d", result.Bytes, len(result.Data))
	}

	dpi, err := codec.ReadDPI(result.Data)
	if err != nil {
		t.Fatalf("read dpi: %v", err)
	}
	if dpi != 300 {
		t.Fatalf("expected 300 dpi metadata, got %d", dpi)
	}
}

func TestProcessor_FrameOnlyRequest(t *testing.T) {
	source := buildTestPNG(t, 800, 600)
	spec := mustSpec(t, domain.PrintOptions{
		PrintDPI:     300,
		FrameEnabled: true,
		FrameWidth:   10,
		FrameColor:   "#FF0000",
	}, nil)

	result, err := NewProcessor(Config{}, nil).ProcessBytes(context.Background(), source, spec)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Width != 2400 || result.Height != 1800 {
		t.Fatalf("expected 2400x1800, got %dx%d", result.Width, result.Height)
	}

	img := decodePNG(t, result.Data)
	red := color.NRGBA{R: 255, A: 255}
	for _, pt := range []image.Point{{0, 0}, {9, 900}, {1200, 5}, {2399, 1799}, {2390, 400}, {700, 1790}} {
		if got := nrgbaAt(img, pt.X, pt.Y); got != red {
			t.Fatalf("expected red border at %v, got %+v", pt, got)
		}
	}
	if got := nrgbaAt(img, 40, 900); got == red {
		t.Fatalf("expected interior pixel to keep image content, got %+v", got)
	}
}

func TestProcessor_IsIdempotent(t *testing.T) {
	source := buildTestPNG(t, 160, 90)
	width := 1.5
	spec := mustSpec(t, domain.PrintOptions{
		PrintDPI:            200,
		CornerRadiusPercent: 12,
		FeatherEdgePercent:  6,
		FrameEnabled:        true,
		FrameColor:          "#203040",
		FrameWidth:          4,
		DoubleFrame:         true,
		AddWhiteBackground:  true,
		PrintAreaWidth:      &width,
	}, &domain.CropRegion{X: 10, Y: 5, Width: 120, Height: 80})

	processor := NewProcessor(Config{}, nil)
	first, err := processor.ProcessBytes(context.Background(), source, spec)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := processor.ProcessBytes(context.Background(), source, spec)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if !bytes.Equal(first.Data, second.Data) {
		t.Fatal("expected byte-identical output across runs")
	}
	if first.Width != 300 || first.Height != 200 {
		t.Fatalf("expected 300x200 for 1.5in at 200dpi, got %dx%d", first.Width, first.Height)
	}
}

func TestProcessor_MalformedBase64IsDecodeError(t *testing.T) {
	source := buildTestPNG(t, 32, 32)
	truncated := codec.DataURI(codec.MIMEPNG, source[:len(source)/2])

	processor := NewProcessor(Config{}, nil)
	spec := mustSpec(t, domain.PrintOptions{}, nil)

	for _, in := range []string{truncated, "data:image/png;base64,%%%%", "", "Zm9v"} {
		_, err := processor.Process(context.Background(), in, spec)
		if err == nil {
			t.Fatalf("expected error for %q", in)
		}
		if !imgerr.Is(err, imgerr.KindDecode) {
			t.Fatalf("expected decode error for %q, got %v", in, err)
		}
	}
}

func TestProcessor_ObjectStoreRun(t *testing.T) {
	objects := newMemoryObjects()
	objects.put("uploads/job-1/source", buildTestPNG(t, 64, 48))

	processor, err := NewObjectStoreProcessor(
		Config{},
		nil,
		ObjectStoreFetcher{Storage: objects},
		ObjectStoreEmitter{Storage: objects},
	)
	if err != nil {
		t.Fatalf("new object store processor: %v", err)
	}

	width := 1.0
	out, err := processor.Run(context.Background(), Request{
		JobID:     "job-1",
		SourceKey: SourceKey("job-1"),
		Spec:      mustSpec(t, domain.PrintOptions{PrintDPI: 100, PrintAreaWidth: &width}, nil),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if out.ObjectKey != "outputs/job-1/print.png" {
		t.Fatalf("unexpected output key %s", out.ObjectKey)
	}
	if out.Width != 100 || out.Height != 75 {
		t.Fatalf("expected 100x75, got %dx%d", out.Width, out.Height)
	}

	stored, ok := objects.get(out.ObjectKey)
	if !ok {
		t.Fatal("expected output object to be written")
	}
	if len(stored) != out.Bytes {
		t.Fatalf("stored %d bytes, output reports %d", len(stored), out.Bytes)
	}
	if objects.contentType(out.ObjectKey) != codec.MIMEPNG {
		t.Fatalf("expected png content type, got %s", objects.contentType(out.ObjectKey))
	}
}

func TestProcessor_RunMissingSource(t *testing.T) {
	objects := newMemoryObjects()
	processor, err := NewObjectStoreProcessor(Config{}, nil, ObjectStoreFetcher{Storage: objects}, ObjectStoreEmitter{Storage: objects})
	if err != nil {
		t.Fatalf("new object store processor: %v", err)
	}

	_, err = processor.Run(context.Background(), Request{JobID: "job-2", SourceKey: "uploads/job-2/source", Spec: mustSpec(t, domain.PrintOptions{}, nil)})
	if !errors.Is(err, errObjectNotFound) {
		t.Fatalf("expected missing object error, got %v", err)
	}
}

func TestProcessor_RunWithoutStages(t *testing.T) {
	_, err := NewProcessor(Config{}, nil).Run(context.Background(), Request{JobID: "job-3"})
	if !errors.Is(err, ErrNoObjectStore) {
		t.Fatalf("expected ErrNoObjectStore, got %v", err)
	}
}

func mustSpec(t testing.TB, opts domain.PrintOptions, crop *domain.CropRegion) Spec {
	t.Helper()

	spec, err := NewSpec(opts, crop)
	if err != nil {
		t.Fatalf("new spec: %v", err)
	}
	return spec
}

func buildTestPNG(t testing.TB, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode source png: %v", err)
	}
	return buf.Bytes()
}

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode output png: %v", err)
	}
	return img
}

func nrgbaAt(img image.Image, x, y int) color.NRGBA {
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

var errObjectNotFound = errors.New("object not found")

type memoryObjects struct {
	mu    sync.Mutex
	data  map[string][]byte
	types map[string]string
}

func newMemoryObjects() *memoryObjects {
	return &memoryObjects{data: map[string][]byte{}, types: map[string]string{}}
}

func (m *memoryObjects) put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
}

func (m *memoryObjects) get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[key]
	return data, ok
}

func (m *memoryObjects) contentType(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.types[key]
}

func (m *memoryObjects) ReadObject(_ context.Context, key string) ([]byte, error) {
	data, ok := m.get(key)
	if !ok {
		return nil, errObjectNotFound
	}
	return data, nil
}

func (m *memoryObjects) WriteObject(_ context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	m.types[key] = contentType
	return nil
}
